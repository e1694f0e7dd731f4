// Package history defines the append-only audit record for terminal decisions.
package history

import "time"

// Entry is an immutable snapshot of a decision at the moment it reached
// a terminal state. Entries are never mutated after append and are purged
// once they age past the retention window.
type Entry struct {
	ID          string    `json:"id"`
	DecisionID  string    `json:"decision_id"`
	WorkflowID  string    `json:"workflow_id"`
	Confidence  float64   `json:"confidence"`
	Outcome     string    `json:"outcome"`
	Feedback    string    `json:"feedback,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	DecidedAt   time.Time `json:"decided_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Query filters a history listing. Zero values mean "no filter".
type Query struct {
	WorkflowID string
	Outcome    string
	Limit      int
}
