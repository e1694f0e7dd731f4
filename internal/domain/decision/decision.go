// Package decision defines the Decision entity and its status machine.
// A decision is created by the router and resolved exactly once, either
// autonomously at creation or later by a human approve/reject or expiry.
package decision

import (
	"encoding/json"
	"time"
)

// Status represents the current state of a decision.
type Status string

const (
	StatusPendingApproval      Status = "pending_approval"
	StatusApproved             Status = "approved"
	StatusRejected             Status = "rejected"
	StatusExpired              Status = "expired"
	StatusExecutedAutonomously Status = "executed_autonomously"
)

// Terminal reports whether a status is final. Every status except
// pending_approval is terminal and immutable once set.
func (s Status) Terminal() bool {
	return s != StatusPendingApproval
}

// CanTransition reports whether the status machine permits from → to.
// The only legal transitions are pending_approval to a terminal state.
func CanTransition(from, to Status) bool {
	if from != StatusPendingApproval {
		return false
	}
	switch to {
	case StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Decision is a single routed request. Payload is an opaque blob handed
// to the downstream executor; the engine never interprets it beyond
// feature extraction for scoring.
type Decision struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Confidence float64         `json:"confidence"`
	Status     Status          `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Feedback   string          `json:"feedback,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	DecidedAt  *time.Time      `json:"decided_at,omitempty"`
}

// Expired reports whether the pending TTL has passed at the given instant.
func (d *Decision) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}

// SubmitRequest holds the fields needed to route a new decision.
// Confidence is optional; when absent the scorer computes it from
// features extracted from the payload.
type SubmitRequest struct {
	WorkflowID string          `json:"workflow_id"`
	Payload    json.RawMessage `json:"payload"`
	Confidence *float64        `json:"confidence,omitempty"`
}

// ExecutionResult is what the downstream executor returned for an
// approved or autonomously executed decision.
type ExecutionResult struct {
	DecisionID string          `json:"decision_id"`
	Output     json.RawMessage `json:"output,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}
