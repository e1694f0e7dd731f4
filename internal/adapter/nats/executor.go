// Package nats implements the executor port over NATS request/reply and
// provides the JetStream KV bucket used for idempotent decision submission.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/decisiongate/decisiongate/internal/domain/decision"
)

// subjectPrefix namespaces execution requests per target collaborator.
const subjectPrefix = "executions."

// executionRequest is the wire envelope sent to a downstream collaborator.
type executionRequest struct {
	DecisionID string          `json:"decision_id"`
	WorkflowID string          `json:"workflow_id"`
	Confidence float64         `json:"confidence"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Executor dispatches decision payloads to collaborators over NATS
// request/reply. The reply body becomes the execution result output.
type Executor struct {
	nc      *nats.Conn
	timeout time.Duration
}

// Connect establishes a NATS connection for the executor.
func Connect(url string, timeout time.Duration) (*Executor, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	slog.Info("nats connected", "url", url)
	return &Executor{nc: nc, timeout: timeout}, nil
}

// Execute sends the decision to the target collaborator and waits for its reply.
func (e *Executor) Execute(ctx context.Context, target string, d *decision.Decision) (*decision.ExecutionResult, error) {
	data, err := json.Marshal(executionRequest{
		DecisionID: d.ID,
		WorkflowID: d.WorkflowID,
		Confidence: d.Confidence,
		Payload:    d.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal execution request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	msg, err := e.nc.RequestWithContext(ctx, subjectPrefix+target, data)
	if err != nil {
		return nil, fmt.Errorf("execute %s via %s: %w", d.ID, target, err)
	}

	return &decision.ExecutionResult{
		DecisionID: d.ID,
		Output:     msg.Data,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// Close shuts down the NATS connection.
func (e *Executor) Close() {
	e.nc.Close()
}

// IdempotencyKV creates (or binds to) the JetStream KV bucket backing the
// idempotency middleware. Entries age out at the bucket TTL.
func (e *Executor) IdempotencyKV(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	js, err := jetstream.New(e.nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		if kv, bindErr := js.KeyValue(ctx, bucket); bindErr == nil {
			return kv, nil
		}
		return nil, fmt.Errorf("jetstream kv create %s: %w", bucket, err)
	}
	return kv, nil
}
