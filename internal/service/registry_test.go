package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/decisiongate/decisiongate/internal/adapter/memory"
	"github.com/decisiongate/decisiongate/internal/domain"
	"github.com/decisiongate/decisiongate/internal/domain/workflow"
)

func TestRegistryCreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewRegistry(memory.NewStore(), nil, 0, time.Second, testLogger())

	cfg, err := reg.Create(ctx, workflow.CreateRequest{
		ID:                  "lead_processing",
		HITLEnabled:         true,
		ConfidenceThreshold: 0.8,
		TargetCollaborator:  "executor-main",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cfg.AutonomyLevel != workflow.LevelSupervised {
		t.Fatalf("expected default level supervised, got %s", cfg.AutonomyLevel)
	}

	got, err := reg.Get(ctx, "lead_processing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ConfidenceThreshold != 0.8 || !got.HITLEnabled {
		t.Fatalf("unexpected config: %+v", got)
	}
}

func TestRegistryCreateValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewRegistry(memory.NewStore(), nil, 0, time.Second, testLogger())

	cases := []struct {
		name string
		req  workflow.CreateRequest
	}{
		{"bad id", workflow.CreateRequest{ID: "UPPER", ConfidenceThreshold: 0.5, TargetCollaborator: "x"}},
		{"short id", workflow.CreateRequest{ID: "ab", ConfidenceThreshold: 0.5, TargetCollaborator: "x"}},
		{"threshold too high", workflow.CreateRequest{ID: "valid_id", ConfidenceThreshold: 1.5, TargetCollaborator: "x"}},
		{"threshold negative", workflow.CreateRequest{ID: "valid_id", ConfidenceThreshold: -0.1, TargetCollaborator: "x"}},
		{"missing target", workflow.CreateRequest{ID: "valid_id", ConfidenceThreshold: 0.5}},
		{"unknown level", workflow.CreateRequest{ID: "valid_id", ConfidenceThreshold: 0.5, TargetCollaborator: "x", AutonomyLevel: "yolo"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := reg.Create(ctx, tc.req); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegistryDuplicateConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewRegistry(memory.NewStore(), nil, 0, time.Second, testLogger())

	req := workflow.CreateRequest{ID: "lead_processing", ConfidenceThreshold: 0.8, TargetCollaborator: "x"}
	if _, err := reg.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.Create(ctx, req); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}
}

func TestRegistryToggle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewRegistry(memory.NewStore(), nil, 0, time.Second, testLogger())
	mustCreate(t, reg, "lead_processing")

	cfg, err := reg.Toggle(ctx, "lead_processing", false)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if cfg.HITLEnabled {
		t.Fatal("expected hitl disabled")
	}

	got, err := reg.Get(ctx, "lead_processing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.HITLEnabled {
		t.Fatal("toggle not persisted")
	}
}

func TestRegistrySetThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewRegistry(memory.NewStore(), nil, 0, time.Second, testLogger())
	mustCreate(t, reg, "lead_processing")

	cfg, err := reg.SetThreshold(ctx, "lead_processing", 0.95)
	if err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	if cfg.ConfidenceThreshold != 0.95 {
		t.Fatalf("expected 0.95, got %v", cfg.ConfidenceThreshold)
	}

	if _, err := reg.SetThreshold(ctx, "lead_processing", 1.2); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := reg.SetThreshold(ctx, "ghost", 0.5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegistrySetAutonomy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewRegistry(memory.NewStore(), nil, 0, time.Second, testLogger())
	mustCreate(t, reg, "lead_processing")

	cfg, err := reg.SetAutonomy(ctx, "lead_processing", workflow.LevelAdaptive)
	if err != nil {
		t.Fatalf("set autonomy: %v", err)
	}
	if cfg.AutonomyLevel != workflow.LevelAdaptive {
		t.Fatalf("expected adaptive label stored, got %s", cfg.AutonomyLevel)
	}
	if cfg.AutonomyLevel.Effective() != workflow.LevelMonitored {
		t.Fatalf("adaptive should behave as monitored, got %s", cfg.AutonomyLevel.Effective())
	}

	if _, err := reg.SetAutonomy(ctx, "lead_processing", "turbo"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistryCacheFillAndInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newFakeCache()
	reg := NewRegistry(memory.NewStore(), c, time.Minute, time.Second, testLogger())
	mustCreate(t, reg, "lead_processing")

	if _, err := reg.Get(ctx, "lead_processing"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "workflow:lead_processing"); !ok {
		t.Fatal("expected cache fill after read")
	}

	if _, err := reg.SetThreshold(ctx, "lead_processing", 0.6); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "workflow:lead_processing"); ok {
		t.Fatal("expected cache invalidation after mutation")
	}

	got, err := reg.Get(ctx, "lead_processing")
	if err != nil {
		t.Fatalf("get after mutation: %v", err)
	}
	if got.ConfidenceThreshold != 0.6 {
		t.Fatalf("expected fresh threshold 0.6, got %v", got.ConfidenceThreshold)
	}
}

// blockingCache parks the first Delete after it lands, holding a
// mutation open between its cache invalidation and its store write.
type blockingCache struct {
	*fakeCache
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockingCache() *blockingCache {
	return &blockingCache{
		fakeCache: newFakeCache(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (c *blockingCache) Delete(ctx context.Context, key string) error {
	err := c.fakeCache.Delete(ctx, key)
	c.once.Do(func() {
		close(c.entered)
		<-c.release
	})
	return err
}

func TestRegistryMutationSurvivesRacingCacheRefill(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newBlockingCache()
	reg := NewRegistry(memory.NewStore(), c, time.Minute, time.Second, testLogger())
	mustCreate(t, reg, "lead_processing")

	if _, err := reg.Get(ctx, "lead_processing"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := reg.Toggle(ctx, "lead_processing", false)
		done <- err
	}()

	// The toggle is parked before its store write. This read misses the
	// cache and re-fills it from the still-enabled row.
	<-c.entered
	stale, err := reg.Get(ctx, "lead_processing")
	if err != nil {
		t.Fatalf("get during mutation: %v", err)
	}
	if !stale.HITLEnabled {
		t.Fatal("expected the pre-toggle config while the write is in flight")
	}

	close(c.release)
	if err := <-done; err != nil {
		t.Fatalf("toggle: %v", err)
	}

	got, err := reg.Get(ctx, "lead_processing")
	if err != nil {
		t.Fatalf("get after mutation: %v", err)
	}
	if got.HITLEnabled {
		t.Fatal("toggle must be visible to reads once it returns")
	}
}

func TestRegistryList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewRegistry(memory.NewStore(), nil, 0, time.Second, testLogger())
	mustCreate(t, reg, "zeta_flow")
	mustCreate(t, reg, "alpha_flow")

	cfgs, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cfgs) != 2 || cfgs[0].ID != "alpha_flow" || cfgs[1].ID != "zeta_flow" {
		t.Fatalf("expected ordered list, got %+v", cfgs)
	}
}

func mustCreate(t *testing.T, reg *Registry, id string) {
	t.Helper()
	_, err := reg.Create(context.Background(), workflow.CreateRequest{
		ID:                  id,
		HITLEnabled:         true,
		ConfidenceThreshold: 0.8,
		TargetCollaborator:  "executor-main",
	})
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}
