// Package service implements the decision routing engine's use cases on
// top of the persistence, cache, and executor ports.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/decisiongate/decisiongate/internal/domain/workflow"
	"github.com/decisiongate/decisiongate/internal/port/cache"
	"github.com/decisiongate/decisiongate/internal/port/database"
	"github.com/decisiongate/decisiongate/internal/resilience"
)

const workflowCachePrefix = "workflow:"

// Registry manages per-workflow routing policies. Reads on the routing
// path go through a short-TTL cache; every mutation invalidates it.
type Registry struct {
	store        database.Store
	cache        cache.Cache
	cacheTTL     time.Duration
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewRegistry creates a workflow policy registry. cache may be nil, in
// which case every read hits the store.
func NewRegistry(store database.Store, c cache.Cache, cacheTTL, storeTimeout time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		store:        store,
		cache:        c,
		cacheTTL:     cacheTTL,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// List returns every registered workflow config ordered by id.
func (r *Registry) List(ctx context.Context) ([]workflow.Config, error) {
	var cfgs []workflow.Config
	err := resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		var err error
		cfgs, err = r.store.ListWorkflows(ctx)
		return err
	})
	return cfgs, err
}

// Get returns one workflow config, preferring the cache.
func (r *Registry) Get(ctx context.Context, id string) (*workflow.Config, error) {
	if cfg := r.cached(ctx, id); cfg != nil {
		return cfg, nil
	}

	var cfg *workflow.Config
	err := resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		var err error
		cfg, err = r.store.GetWorkflow(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.fill(ctx, cfg)
	return cfg, nil
}

// Create registers a new workflow policy.
func (r *Registry) Create(ctx context.Context, req workflow.CreateRequest) (*workflow.Config, error) {
	if err := workflow.ValidateCreate(req); err != nil {
		return nil, err
	}
	if req.AutonomyLevel == "" {
		req.AutonomyLevel = workflow.LevelSupervised
	}

	var cfg *workflow.Config
	err := resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		var err error
		cfg, err = r.store.CreateWorkflow(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("workflow created",
		"workflow_id", cfg.ID,
		"hitl_enabled", cfg.HITLEnabled,
		"threshold", cfg.ConfidenceThreshold,
		"autonomy_level", cfg.AutonomyLevel)
	return cfg, nil
}

// Toggle flips HITL enforcement for a workflow.
func (r *Registry) Toggle(ctx context.Context, id string, enabled bool) (*workflow.Config, error) {
	return r.mutate(ctx, id, "hitl toggled", func(cfg *workflow.Config) error {
		cfg.HITLEnabled = enabled
		return nil
	})
}

// SetThreshold updates a workflow's confidence threshold.
func (r *Registry) SetThreshold(ctx context.Context, id string, threshold float64) (*workflow.Config, error) {
	if err := workflow.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	return r.mutate(ctx, id, "threshold updated", func(cfg *workflow.Config) error {
		cfg.ConfidenceThreshold = threshold
		return nil
	})
}

// SetAutonomy updates a workflow's autonomy level.
func (r *Registry) SetAutonomy(ctx context.Context, id string, level workflow.AutonomyLevel) (*workflow.Config, error) {
	if err := workflow.ValidateLevel(level); err != nil {
		return nil, err
	}
	return r.mutate(ctx, id, "autonomy level updated", func(cfg *workflow.Config) error {
		cfg.AutonomyLevel = level
		return nil
	})
}

// mutate is the shared read-modify-write path for policy changes. The
// cache entry is dropped on both sides of the write: before, so the old
// entry is gone while the write is in flight, and after, because a read
// landing in that window re-fills the cache from the pre-mutation row.
func (r *Registry) mutate(ctx context.Context, id, event string, apply func(*workflow.Config) error) (*workflow.Config, error) {
	var cfg *workflow.Config
	err := resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		var err error
		cfg, err = r.store.GetWorkflow(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := apply(cfg); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = time.Now().UTC()

	r.invalidate(ctx, id)

	err = resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		return r.store.UpdateWorkflow(ctx, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("update workflow %s: %w", id, err)
	}

	r.invalidate(ctx, id)

	r.logger.Info(event,
		"workflow_id", cfg.ID,
		"hitl_enabled", cfg.HITLEnabled,
		"threshold", cfg.ConfidenceThreshold,
		"autonomy_level", cfg.AutonomyLevel)
	return cfg, nil
}

func (r *Registry) cached(ctx context.Context, id string) *workflow.Config {
	if r.cache == nil {
		return nil
	}
	data, ok, err := r.cache.Get(ctx, workflowCachePrefix+id)
	if err != nil || !ok {
		return nil
	}
	var cfg workflow.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	return &cfg
}

func (r *Registry) fill(ctx context.Context, cfg *workflow.Config) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, workflowCachePrefix+cfg.ID, data, r.cacheTTL); err != nil {
		r.logger.Debug("workflow cache set failed", "workflow_id", cfg.ID, "error", err)
	}
}

func (r *Registry) invalidate(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, workflowCachePrefix+id); err != nil {
		r.logger.Debug("workflow cache invalidation failed", "workflow_id", id, "error", err)
	}
}
