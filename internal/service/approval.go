package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/decisiongate/decisiongate/internal/adapter/otel"
	"github.com/decisiongate/decisiongate/internal/adapter/ws"
	"github.com/decisiongate/decisiongate/internal/domain"
	"github.com/decisiongate/decisiongate/internal/domain/decision"
	"github.com/decisiongate/decisiongate/internal/domain/history"
	"github.com/decisiongate/decisiongate/internal/port/database"
	"github.com/decisiongate/decisiongate/internal/port/executor"
	"github.com/decisiongate/decisiongate/internal/resilience"
)

// Approvals resolves pending decisions with a human verdict. Every
// resolution goes through the store's compare-and-set so concurrent
// approve, reject, and expiry calls produce exactly one winner.
type Approvals struct {
	store        database.Store
	workflows    WorkflowResolver
	exec         executor.Executor
	breaker      *resilience.Breaker
	hub          Broadcaster
	metrics      *otel.Metrics
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewApprovals wires the approval handler. hub and metrics may be nil.
func NewApprovals(
	store database.Store,
	workflows WorkflowResolver,
	exec executor.Executor,
	breaker *resilience.Breaker,
	hub Broadcaster,
	metrics *otel.Metrics,
	storeTimeout time.Duration,
	logger *slog.Logger,
) *Approvals {
	return &Approvals{
		store:        store,
		workflows:    workflows,
		exec:         exec,
		breaker:      breaker,
		hub:          hub,
		metrics:      metrics,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// ListPending returns decisions still awaiting a verdict, oldest first.
// Decisions past their TTL are excluded even before the sweep reaps them.
func (a *Approvals) ListPending(ctx context.Context) ([]decision.Decision, error) {
	var pending []decision.Decision
	err := resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		defer cancel()
		var err error
		pending, err = a.store.ListPendingDecisions(ctx, time.Now().UTC())
		return err
	})
	return pending, err
}

// Get returns one decision by id.
func (a *Approvals) Get(ctx context.Context, id string) (*decision.Decision, error) {
	var d *decision.Decision
	err := resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		defer cancel()
		var err error
		d, err = a.store.GetDecision(ctx, id)
		return err
	})
	return d, err
}

// Approve marks a pending decision approved and hands it to the
// downstream executor. A decision already resolved, or past its TTL,
// yields ErrConflict.
func (a *Approvals) Approve(ctx context.Context, id, feedback string) (*decision.Decision, error) {
	d, err := a.resolve(ctx, id, decision.StatusApproved, feedback)
	if err != nil {
		return nil, err
	}

	a.execute(ctx, d)
	a.appendHistory(ctx, d)
	a.metrics.RecordResolution(ctx, string(decision.StatusApproved))
	a.broadcastResolved(ctx, d)

	a.logger.Info("decision approved",
		"decision_id", d.ID,
		"workflow_id", d.WorkflowID,
		"confidence", d.Confidence)
	return d, nil
}

// Reject marks a pending decision rejected. Nothing is executed.
func (a *Approvals) Reject(ctx context.Context, id, feedback string) (*decision.Decision, error) {
	d, err := a.resolve(ctx, id, decision.StatusRejected, feedback)
	if err != nil {
		return nil, err
	}

	a.appendHistory(ctx, d)
	a.metrics.RecordResolution(ctx, string(decision.StatusRejected))
	a.broadcastResolved(ctx, d)

	a.logger.Info("decision rejected",
		"decision_id", d.ID,
		"workflow_id", d.WorkflowID,
		"feedback", feedback)
	return d, nil
}

// resolve performs the compare-and-set transition from pending to the
// requested terminal status. Expiry wins over a late human verdict: a
// pending decision past its TTL is expired here instead, without waiting
// for the sweep.
func (a *Approvals) resolve(ctx context.Context, id string, next decision.Status, feedback string) (*decision.Decision, error) {
	d, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if d.Status.Terminal() {
		return nil, fmt.Errorf("decision %s is %s: %w", id, d.Status, domain.ErrConflict)
	}
	if d.Expired(now) {
		a.expireLate(ctx, d, now)
		return nil, fmt.Errorf("decision %s expired at %s: %w", id, d.ExpiresAt.Format(time.RFC3339), domain.ErrConflict)
	}

	var won bool
	err = resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		defer cancel()
		var err error
		won, err = a.store.CompareAndSetStatus(ctx, id, decision.StatusPendingApproval, next, now, feedback)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("transition decision %s to %s: %w", id, next, err)
	}
	if !won {
		return nil, fmt.Errorf("decision %s already resolved: %w", id, domain.ErrConflict)
	}

	d.Status = next
	d.DecidedAt = &now
	if feedback != "" {
		d.Feedback = feedback
	}
	return d, nil
}

// expireLate does the sweep's job eagerly when a verdict arrives after
// the TTL. Losing the CAS here is fine, the sweep or a racing call won.
func (a *Approvals) expireLate(ctx context.Context, d *decision.Decision, now time.Time) {
	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	won, err := a.store.CompareAndSetStatus(ctx, d.ID, decision.StatusPendingApproval, decision.StatusExpired, now, "")
	if err != nil {
		a.logger.Warn("late expiry failed", "decision_id", d.ID, "error", err)
		return
	}
	if won {
		d.Status = decision.StatusExpired
		d.DecidedAt = &now
		a.appendHistory(ctx, d)
		a.metrics.RecordResolution(ctx, string(decision.StatusExpired))
		a.broadcastResolved(ctx, d)
	}
}

// execute runs the downstream action for an approved decision. The
// verdict has already committed, so executor failures are logged and the
// decision keeps its approved status without a result.
func (a *Approvals) execute(ctx context.Context, d *decision.Decision) {
	cfg, err := a.workflows.Get(ctx, d.WorkflowID)
	if err != nil {
		a.logger.Error("resolve workflow for execution failed",
			"decision_id", d.ID, "workflow_id", d.WorkflowID, "error", err)
		return
	}

	var result *decision.ExecutionResult
	err = resilience.RetryTransient(ctx, func(ctx context.Context) error {
		return a.breaker.Execute(func() error {
			var execErr error
			result, execErr = a.exec.Execute(ctx, cfg.TargetCollaborator, d)
			return execErr
		})
	})
	if err != nil {
		a.logger.Error("execute approved decision failed",
			"decision_id", d.ID, "target", cfg.TargetCollaborator, "error", err)
		return
	}
	if result == nil || len(result.Output) == 0 {
		return
	}

	d.Result = result.Output
	err = resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		defer cancel()
		return a.store.SetDecisionResult(ctx, d.ID, result.Output)
	})
	if err != nil {
		a.logger.Error("record execution result failed", "decision_id", d.ID, "error", err)
	}
}

func (a *Approvals) appendHistory(ctx context.Context, d *decision.Decision) {
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
		ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		defer cancel()
		return a.store.AppendHistory(ctx, entry)
	})
	if err != nil {
		a.logger.Error("append history failed", "decision_id", d.ID, "error", err)
	}
}

func (a *Approvals) broadcastResolved(ctx context.Context, d *decision.Decision) {
	if a.hub == nil {
		return
	}
	a.hub.BroadcastEvent(ctx, ws.EventDecisionResolved, ws.DecisionResolvedEvent{
		DecisionID: d.ID,
		WorkflowID: d.WorkflowID,
		Status:     string(d.Status),
		Feedback:   d.Feedback,
	})
}
