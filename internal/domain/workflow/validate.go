package workflow

import (
	"fmt"
	"regexp"

	"github.com/decisiongate/decisiongate/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,62}[a-z0-9]$`)

// ValidateCreate checks a CreateRequest before it reaches the store.
func ValidateCreate(req CreateRequest) error {
	if !idRegex.MatchString(req.ID) {
		return fmt.Errorf("workflow id %q must be 3-64 lowercase alphanumeric, hyphen or underscore characters: %w", req.ID, domain.ErrValidation)
	}
	if err := ValidateThreshold(req.ConfidenceThreshold); err != nil {
		return err
	}
	if req.AutonomyLevel != "" && !req.AutonomyLevel.Valid() {
		return fmt.Errorf("unknown autonomy level %q: %w", req.AutonomyLevel, domain.ErrValidation)
	}
	if req.TargetCollaborator == "" {
		return fmt.Errorf("target_collaborator is required: %w", domain.ErrValidation)
	}
	if len(req.Description) > 2000 {
		return fmt.Errorf("description exceeds 2000 characters: %w", domain.ErrValidation)
	}
	return nil
}

// ValidateThreshold checks that a confidence threshold is inside [0,1].
func ValidateThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]: %w", threshold, domain.ErrValidation)
	}
	return nil
}

// ValidateLevel checks that a level is in the closed autonomy set.
func ValidateLevel(level AutonomyLevel) error {
	if !level.Valid() {
		return fmt.Errorf("unknown autonomy level %q: %w", level, domain.ErrValidation)
	}
	return nil
}
