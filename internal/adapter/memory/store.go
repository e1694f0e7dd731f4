// Package memory implements the database port with a mutex-guarded map.
// It backs unit tests and the dev-mode store driver; the compare-and-set
// semantics are identical to the Postgres adapter's conditional UPDATE.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/decisiongate/decisiongate/internal/domain"
	"github.com/decisiongate/decisiongate/internal/domain/decision"
	"github.com/decisiongate/decisiongate/internal/domain/history"
	"github.com/decisiongate/decisiongate/internal/domain/workflow"
)

// Store is an in-memory implementation of database.Store.
type Store struct {
	mu        sync.Mutex
	workflows map[string]workflow.Config
	decisions map[string]decision.Decision
	entries   []history.Entry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		workflows: make(map[string]workflow.Config),
		decisions: make(map[string]decision.Decision),
	}
}

// --- Workflows ---

func (s *Store) ListWorkflows(_ context.Context) ([]workflow.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configs := make([]workflow.Config, 0, len(s.workflows))
	for _, cfg := range s.workflows {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	return configs, nil
}

func (s *Store) GetWorkflow(_ context.Context, id string) (*workflow.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("get workflow %s: %w", id, domain.ErrNotFound)
	}
	return &cfg, nil
}

func (s *Store) CreateWorkflow(_ context.Context, req workflow.CreateRequest) (*workflow.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[req.ID]; exists {
		return nil, fmt.Errorf("workflow %s already exists: %w", req.ID, domain.ErrConflict)
	}

	now := time.Now().UTC()
	level := req.AutonomyLevel
	if level == "" {
		level = workflow.LevelSupervised
	}
	cfg := workflow.Config{
		ID:                  req.ID,
		HITLEnabled:         req.HITLEnabled,
		ConfidenceThreshold: req.ConfidenceThreshold,
		AutonomyLevel:       level,
		TargetCollaborator:  req.TargetCollaborator,
		Description:         req.Description,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.workflows[req.ID] = cfg
	return &cfg, nil
}

func (s *Store) UpdateWorkflow(_ context.Context, cfg *workflow.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.workflows[cfg.ID]
	if !ok {
		return fmt.Errorf("update workflow %s: %w", cfg.ID, domain.ErrNotFound)
	}
	cfg.CreatedAt = stored.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()
	s.workflows[cfg.ID] = *cfg
	return nil
}

// --- Decisions ---

func (s *Store) CreateDecision(_ context.Context, d *decision.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.decisions[d.ID]; exists {
		return fmt.Errorf("decision %s already exists: %w", d.ID, domain.ErrConflict)
	}
	s.decisions[d.ID] = *d
	return nil
}

func (s *Store) GetDecision(_ context.Context, id string) (*decision.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[id]
	if !ok {
		return nil, fmt.Errorf("get decision %s: %w", id, domain.ErrNotFound)
	}
	return &d, nil
}

func (s *Store) ListPendingDecisions(_ context.Context, now time.Time) ([]decision.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []decision.Decision
	for _, d := range s.decisions {
		if d.Status == decision.StatusPendingApproval && !d.Expired(now) {
			pending = append(pending, d)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

func (s *Store) ListExpiredPending(_ context.Context, now time.Time) ([]decision.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []decision.Decision
	for _, d := range s.decisions {
		if d.Status == decision.StatusPendingApproval && d.Expired(now) {
			due = append(due, d)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	return due, nil
}

func (s *Store) CompareAndSetStatus(_ context.Context, id string, expected, next decision.Status, decidedAt time.Time, feedback string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[id]
	if !ok {
		return false, fmt.Errorf("cas decision %s: %w", id, domain.ErrNotFound)
	}
	if d.Status != expected {
		return false, nil
	}

	d.Status = next
	d.DecidedAt = &decidedAt
	if feedback != "" {
		d.Feedback = feedback
	}
	s.decisions[id] = d
	return true, nil
}

func (s *Store) SetDecisionResult(_ context.Context, id string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[id]
	if !ok {
		return fmt.Errorf("set decision result %s: %w", id, domain.ErrNotFound)
	}
	d.Result = append([]byte(nil), result...)
	s.decisions[id] = d
	return nil
}

// --- History ---

func (s *Store) AppendHistory(_ context.Context, e *history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, *e)
	return nil
}

func (s *Store) QueryHistory(_ context.Context, q history.Query) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []history.Entry
	// Newest first, matching the Postgres adapter's ORDER BY created_at DESC.
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if q.WorkflowID != "" && e.WorkflowID != q.WorkflowID {
			continue
		}
		if q.Outcome != "" && e.Outcome != q.Outcome {
			continue
		}
		result = append(result, e)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) PurgeHistoryBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var purged int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return purged, nil
}
