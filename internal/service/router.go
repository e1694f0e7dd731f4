package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/decisiongate/decisiongate/internal/adapter/otel"
	"github.com/decisiongate/decisiongate/internal/adapter/ws"
	"github.com/decisiongate/decisiongate/internal/domain"
	"github.com/decisiongate/decisiongate/internal/domain/decision"
	"github.com/decisiongate/decisiongate/internal/domain/history"
	"github.com/decisiongate/decisiongate/internal/domain/workflow"
	"github.com/decisiongate/decisiongate/internal/port/database"
	"github.com/decisiongate/decisiongate/internal/port/executor"
	"github.com/decisiongate/decisiongate/internal/resilience"
)

// WorkflowResolver looks up the routing policy for a workflow.
type WorkflowResolver interface {
	Get(ctx context.Context, id string) (*workflow.Config, error)
}

// FeatureExtractor derives scoring features from a raw decision payload.
type FeatureExtractor interface {
	Extract(payload []byte) map[string]any
}

// Scorer computes a confidence estimate from extracted features.
type Scorer func(features map[string]any) float64

// Broadcaster pushes decision lifecycle events to connected observers.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

var tracer = otelapi.Tracer("decisiongate")

// Router routes submitted decisions: autonomous execution when the
// workflow's policy allows it, otherwise a pending record awaiting a
// human verdict.
type Router struct {
	workflows    WorkflowResolver
	store        database.Store
	exec         executor.Executor
	breaker      *resilience.Breaker
	extractor    FeatureExtractor
	score        Scorer
	hub          Broadcaster
	metrics      *otel.Metrics
	pendingTTL   time.Duration
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewRouter wires the decision router. hub and metrics may be nil.
func NewRouter(
	workflows WorkflowResolver,
	store database.Store,
	exec executor.Executor,
	breaker *resilience.Breaker,
	extractor FeatureExtractor,
	score Scorer,
	hub Broadcaster,
	metrics *otel.Metrics,
	pendingTTL, storeTimeout time.Duration,
	logger *slog.Logger,
) *Router {
	return &Router{
		workflows:    workflows,
		store:        store,
		exec:         exec,
		breaker:      breaker,
		extractor:    extractor,
		score:        score,
		hub:          hub,
		metrics:      metrics,
		pendingTTL:   pendingTTL,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// Route decides the fate of a submitted decision. The order is load
// bearing: the workflow must exist, then a disabled HITL gate wins over
// any confidence value, then the threshold comparison applies. Confidence
// equal to the threshold executes autonomously.
func (r *Router) Route(ctx context.Context, req decision.SubmitRequest) (*decision.Decision, error) {
	started := time.Now()

	ctx, span := tracer.Start(ctx, "decision.route",
		trace.WithAttributes(attribute.String("workflow.id", req.WorkflowID)))
	defer span.End()

	if req.WorkflowID == "" {
		return nil, fmt.Errorf("workflow_id is required: %w", domain.ErrValidation)
	}

	cfg, err := r.workflows.Get(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	confidence, err := r.resolveConfidence(req)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Float64("decision.confidence", confidence))

	now := time.Now().UTC()
	d := &decision.Decision{
		ID:         uuid.NewString(),
		WorkflowID: cfg.ID,
		Confidence: confidence,
		Payload:    req.Payload,
		CreatedAt:  now,
	}

	if !cfg.HITLEnabled || confidence >= cfg.ConfidenceThreshold {
		if err := r.executeAutonomously(ctx, cfg, d, now); err != nil {
			return nil, err
		}
		r.metrics.RecordRouted(ctx, "executed", confidence, time.Since(started))
		return d, nil
	}

	d.Status = decision.StatusPendingApproval
	d.ExpiresAt = now.Add(r.pendingTTL)

	err = resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		return r.store.CreateDecision(ctx, d)
	})
	if err != nil {
		return nil, fmt.Errorf("create pending decision: %w", err)
	}

	r.logger.Info("decision queued for approval",
		"decision_id", d.ID,
		"workflow_id", d.WorkflowID,
		"confidence", d.Confidence,
		"threshold", cfg.ConfidenceThreshold,
		"expires_at", d.ExpiresAt)

	if r.hub != nil {
		r.hub.BroadcastEvent(ctx, ws.EventDecisionPending, ws.DecisionPendingEvent{
			DecisionID: d.ID,
			WorkflowID: d.WorkflowID,
			Confidence: d.Confidence,
			ExpiresAt:  d.ExpiresAt,
		})
	}
	r.metrics.RecordRouted(ctx, "pending", confidence, time.Since(started))
	return d, nil
}

// resolveConfidence uses the caller-supplied score when present, otherwise
// runs the scorer over features extracted from the payload.
func (r *Router) resolveConfidence(req decision.SubmitRequest) (float64, error) {
	if req.Confidence != nil {
		c := *req.Confidence
		if c < 0 || c > 1 {
			return 0, fmt.Errorf("confidence %v outside [0,1]: %w", c, domain.ErrValidation)
		}
		return c, nil
	}
	return r.score(r.extractor.Extract(req.Payload)), nil
}

// executeAutonomously runs the downstream executor first and persists the
// terminal record only on success, so a failed execution never leaves a
// decision claiming it ran.
func (r *Router) executeAutonomously(ctx context.Context, cfg *workflow.Config, d *decision.Decision, now time.Time) error {
	var result *decision.ExecutionResult
	err := resilience.RetryTransient(ctx, func(ctx context.Context) error {
		return r.breaker.Execute(func() error {
			var execErr error
			result, execErr = r.exec.Execute(ctx, cfg.TargetCollaborator, d)
			return execErr
		})
	})
	if err != nil {
		return fmt.Errorf("execute decision %s: %w", d.ID, err)
	}

	d.Status = decision.StatusExecutedAutonomously
	decidedAt := now
	d.DecidedAt = &decidedAt
	if result != nil {
		d.Result = result.Output
	}

	err = resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		return r.store.CreateDecision(ctx, d)
	})
	if err != nil {
		return fmt.Errorf("record executed decision: %w", err)
	}

	r.appendHistory(ctx, d)

	r.logger.Info("decision executed autonomously",
		"decision_id", d.ID,
		"workflow_id", d.WorkflowID,
		"confidence", d.Confidence,
		"target", cfg.TargetCollaborator)

	if r.hub != nil {
		r.hub.BroadcastEvent(ctx, ws.EventDecisionExecuted, ws.DecisionExecutedEvent{
			DecisionID: d.ID,
			WorkflowID: d.WorkflowID,
			Confidence: d.Confidence,
		})
	}
	return nil
}

// appendHistory records the terminal snapshot. Audit append failures are
// logged, not surfaced; the decision itself already committed.
func (r *Router) appendHistory(ctx context.Context, d *decision.Decision) {
	decidedAt := d.CreatedAt
	if d.DecidedAt != nil {
		decidedAt = *d.DecidedAt
	}
	entry := &history.Entry{
		DecisionID:  d.ID,
		WorkflowID:  d.WorkflowID,
		Confidence:  d.Confidence,
		Outcome:     string(d.Status),
		Feedback:    d.Feedback,
		SubmittedAt: d.CreatedAt,
		DecidedAt:   decidedAt,
	}
	err := resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		return r.store.AppendHistory(ctx, entry)
	})
	if err != nil {
		r.logger.Error("append history failed", "decision_id", d.ID, "error", err)
	}
}
