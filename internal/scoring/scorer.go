// Package scoring implements the confidence scorer: a pure additive model
// that estimates how safe it is to execute a decision without human review.
package scoring

import (
	"encoding/json"
	"strings"
)

// Base is the score of an empty feature set.
const Base = 0.5

// Weights for the recognized feature keys. Unknown keys are ignored,
// missing keys contribute zero. The sum is clamped to [0,1].
const (
	weightName        = 0.10
	weightDescription = 0.05
	weightContact     = 0.15
	weightPriority    = 0.10
	weightBudget      = 0.15
)

// knownPriorities is the closed set a declared priority must align with.
var knownPriorities = map[string]struct{}{
	"low":    {},
	"normal": {},
	"high":   {},
	"urgent": {},
}

// knownBudgets is the set of recognized budget/magnitude buckets.
var knownBudgets = map[string]struct{}{
	"under_1k": {},
	"1k_10k":   {},
	"10k_50k":  {},
	"over_50k": {},
}

// Score computes a confidence estimate in [0,1] from a feature map.
// It is deterministic, performs no I/O, and never fails: an empty or
// nil map scores Base.
func Score(features map[string]any) float64 {
	score := Base

	if nonEmptyString(features["name"]) {
		score += weightName
	}
	if nonEmptyString(features["description"]) {
		score += weightDescription
	}
	if nonEmptyString(features["email"]) || nonEmptyString(features["phone"]) {
		score += weightContact
	}
	if p, ok := stringValue(features["priority"]); ok {
		if _, known := knownPriorities[strings.ToLower(p)]; known {
			score += weightPriority
		}
	}
	if b, ok := stringValue(features["budget"]); ok {
		if _, known := knownBudgets[strings.ToLower(b)]; known {
			score += weightBudget
		}
	}

	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func nonEmptyString(v any) bool {
	s, ok := stringValue(v)
	return ok && strings.TrimSpace(s) != ""
}

// JSONExtractor derives scoring features by parsing the raw decision
// payload as a JSON object. Non-object payloads yield no features, which
// the scorer treats as the base case rather than an error.
type JSONExtractor struct{}

// Extract implements the router's feature extractor contract.
func (JSONExtractor) Extract(payload []byte) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	var features map[string]any
	if err := json.Unmarshal(payload, &features); err != nil {
		return nil
	}
	return features
}
