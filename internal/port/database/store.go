// Package database defines the persistence port (interface).
package database

import (
	"context"
	"time"

	"github.com/decisiongate/decisiongate/internal/domain/decision"
	"github.com/decisiongate/decisiongate/internal/domain/history"
	"github.com/decisiongate/decisiongate/internal/domain/workflow"
)

// Store is the port interface for all persistence operations. Workflow
// configs and decision records are the only shared mutable state in the
// engine; every mutation goes through this interface.
type Store interface {
	// Workflows
	ListWorkflows(ctx context.Context) ([]workflow.Config, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Config, error)
	CreateWorkflow(ctx context.Context, req workflow.CreateRequest) (*workflow.Config, error)
	UpdateWorkflow(ctx context.Context, cfg *workflow.Config) error

	// Decisions
	CreateDecision(ctx context.Context, d *decision.Decision) error
	GetDecision(ctx context.Context, id string) (*decision.Decision, error)
	// ListPendingDecisions returns pending decisions whose TTL has not
	// passed at the given instant.
	ListPendingDecisions(ctx context.Context, now time.Time) ([]decision.Decision, error)
	// ListExpiredPending returns pending decisions whose TTL has passed;
	// the sweeper resolves each one through CompareAndSetStatus.
	ListExpiredPending(ctx context.Context, now time.Time) ([]decision.Decision, error)
	// CompareAndSetStatus atomically transitions a decision's status. It
	// returns true only if the stored status still equals expected at the
	// moment of the update, guaranteeing exactly one winner under
	// concurrent approve/reject/expiry calls.
	CompareAndSetStatus(ctx context.Context, id string, expected, next decision.Status, decidedAt time.Time, feedback string) (bool, error)
	// SetDecisionResult records the executor output on a terminal decision.
	SetDecisionResult(ctx context.Context, id string, result []byte) error

	// History
	AppendHistory(ctx context.Context, e *history.Entry) error
	QueryHistory(ctx context.Context, q history.Query) ([]history.Entry, error)
	// PurgeHistoryBefore removes entries older than the cutoff and returns
	// the number purged.
	PurgeHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
