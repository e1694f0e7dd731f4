// Package executor defines the port for downstream execution collaborators.
package executor

import (
	"context"

	"github.com/decisiongate/decisiongate/internal/domain/decision"
)

// Executor performs the real action for an approved or autonomously
// executed decision. Implementations live behind transport adapters
// (NATS request/reply in production, mocks in tests).
type Executor interface {
	Execute(ctx context.Context, target string, d *decision.Decision) (*decision.ExecutionResult, error)
}
