package core

import (
	"math"
)

// Default thresholds
const (
	DefaultPriorityThreshold = 0.7
	DefaultArchiveThreshold  = 0.3
)

// Thresholds are the user-tunable cut points of the decision table
type Thresholds struct {
	Priority float64 `json:"priority_threshold"`
	Archive  float64 `json:"archive_threshold"`
}

// DefaultThresholds returns the documented default thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{Priority: DefaultPriorityThreshold, Archive: DefaultArchiveThreshold}
}

// NewThresholds validates and builds a threshold pair
func NewThresholds(priority, archive float64) (Thresholds, error) {
	t := Thresholds{Priority: priority, Archive: archive}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

// Validate rejects thresholds outside [0,1]
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Priority) || t.Priority < 0 || t.Priority > 1 {
		return &ConfigurationError{Field: "priority_threshold", Value: t.Priority}
	}
	if math.IsNaN(t.Archive) || t.Archive < 0 || t.Archive > 1 {
		return &ConfigurationError{Field: "archive_threshold", Value: t.Archive}
	}
	return nil
}

// Decide maps an attention score to a queue. Rules are evaluated in order:
//
//  1. spam → SPAM_FOLDER
//  2. score ≥ priority threshold → PRIORITY_INBOX
//  3. score ≤ archive threshold and category is promotions/social/updates → AUTO_ARCHIVE
//  4. otherwise → REGULAR_INBOX
//
// Scores outside [0,1] are clamped first. A message categorized as spam by
// the provider counts as a spam signal.
func Decide(score float64, category Category, spam bool, t Thresholds) Decision {
	score = clamp01(score)

	switch {
	case spam || category == CategorySpam:
		return SpamFolder
	case score >= t.Priority:
		return PriorityInbox
	case score <= t.Archive && category.archivable():
		return AutoArchive
	default:
		return RegularInbox
	}
}
