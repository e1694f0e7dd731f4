// Package workflow defines the per-workflow HITL routing policy.
// A workflow's config decides whether AI-produced decisions execute
// autonomously or are queued for human approval.
package workflow

import "time"

// AutonomyLevel is a named policy tier describing the intended degree
// of human oversight for a workflow.
type AutonomyLevel string

const (
	LevelSupervised AutonomyLevel = "supervised"
	LevelAssisted   AutonomyLevel = "assisted"
	LevelMonitored  AutonomyLevel = "monitored"
	LevelAutonomous AutonomyLevel = "autonomous"
	// LevelAdaptive is accepted as a label only; it behaves as LevelMonitored
	// until a concrete self-adjustment rule exists.
	LevelAdaptive AutonomyLevel = "adaptive"
)

// Levels is the closed set of accepted autonomy levels.
var Levels = []AutonomyLevel{
	LevelSupervised,
	LevelAssisted,
	LevelMonitored,
	LevelAutonomous,
	LevelAdaptive,
}

// Valid reports whether l is in the closed set of autonomy levels.
func (l AutonomyLevel) Valid() bool {
	for _, known := range Levels {
		if l == known {
			return true
		}
	}
	return false
}

// Effective resolves label-only levels to the tier that governs behavior.
func (l AutonomyLevel) Effective() AutonomyLevel {
	if l == LevelAdaptive {
		return LevelMonitored
	}
	return l
}

// Config is the routing policy for a single workflow. Mutations go through
// the registry's explicit toggle/threshold/level operations only; workflows
// are never deleted, deactivation is HITLEnabled=false.
type Config struct {
	ID                  string        `json:"id"`
	HITLEnabled         bool          `json:"hitl_enabled"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	AutonomyLevel       AutonomyLevel `json:"autonomy_level"`
	TargetCollaborator  string        `json:"target_collaborator"`
	Description         string        `json:"description,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// CreateRequest holds the fields needed to register a new workflow.
type CreateRequest struct {
	ID                  string        `json:"id"`
	HITLEnabled         bool          `json:"hitl_enabled"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	AutonomyLevel       AutonomyLevel `json:"autonomy_level"`
	TargetCollaborator  string        `json:"target_collaborator"`
	Description         string        `json:"description,omitempty"`
}
