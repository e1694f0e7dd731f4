package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/decisiongate/decisiongate/internal/adapter/memory"
	"github.com/decisiongate/decisiongate/internal/domain/decision"
	"github.com/decisiongate/decisiongate/internal/domain/workflow"
	"github.com/decisiongate/decisiongate/internal/resilience"
	"github.com/decisiongate/decisiongate/internal/scoring"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubExecutor records calls and returns a canned output or error.
type stubExecutor struct {
	mu      sync.Mutex
	calls   int
	targets []string
	err     error
}

func (s *stubExecutor) Execute(_ context.Context, target string, d *decision.Decision) (*decision.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.targets = append(s.targets, target)
	if s.err != nil {
		return nil, s.err
	}
	return &decision.ExecutionResult{
		DecisionID: d.ID,
		Output:     json.RawMessage(`{"status":"done"}`),
		ExecutedAt: time.Now().UTC(),
	}, nil
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeCache is a map-backed cache without eviction, enough to observe
// fills and invalidations.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

type fixture struct {
	store     *memory.Store
	exec      *stubExecutor
	registry  *Registry
	router    *Router
	approvals *Approvals
}

func newFixture(pendingTTL time.Duration) *fixture {
	logger := testLogger()
	store := memory.NewStore()
	exec := &stubExecutor{}
	breaker := resilience.NewBreaker(5, 30*time.Second)
	registry := NewRegistry(store, nil, 0, time.Second, logger)
	router := NewRouter(registry, store, exec, breaker, scoring.JSONExtractor{}, scoring.Score,
		nil, nil, pendingTTL, time.Second, logger)
	approvals := NewApprovals(store, registry, exec, breaker, nil, nil, time.Second, logger)
	return &fixture{
		store:     store,
		exec:      exec,
		registry:  registry,
		router:    router,
		approvals: approvals,
	}
}

func (f *fixture) seedWorkflow(ctx context.Context, id string, enabled bool, threshold float64) *workflow.Config {
	cfg, err := f.registry.Create(ctx, workflow.CreateRequest{
		ID:                  id,
		HITLEnabled:         enabled,
		ConfidenceThreshold: threshold,
		AutonomyLevel:       workflow.LevelSupervised,
		TargetCollaborator:  "executor-main",
	})
	if err != nil {
		panic(err)
	}
	return cfg
}

var errExecutorDown = errors.New("executor unavailable")
