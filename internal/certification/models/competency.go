package models

import (
	"time"

	id "certflow/pkg/domain"
	pstrings "certflow/pkg/platform/strings"
)

// Competency is the catalog entry a candidate certifies against.
//
// Invariants:
//   - RequiredKinds is a normalized set (lowercase, trimmed, unique, sorted)
//   - Duration == 0 means evaluations have no deadline
//   - ValidityPeriod == 0 means issued certificates never expire
type Competency struct {
	ID             id.CompetencyID `json:"id"`
	Name           string          `json:"name"`
	RequiredKinds  []string        `json:"required_kinds"`
	Duration       time.Duration   `json:"duration"`
	ValidityPeriod time.Duration   `json:"validity_period"`
}

func NewCompetency(competencyID id.CompetencyID, name string, requiredKinds []string, duration, validity time.Duration) *Competency {
	return &Competency{
		ID:             competencyID,
		Name:           name,
		RequiredKinds:  pstrings.NormalizeSet(requiredKinds),
		Duration:       duration,
		ValidityPeriod: validity,
	}
}

// Deadline returns when an evaluation assigned at assignedAt is due. ok is
// false when the competency has no evaluation deadline.
func (c *Competency) Deadline(assignedAt time.Time) (deadline time.Time, ok bool) {
	if c.Duration <= 0 {
		return time.Time{}, false
	}
	return assignedAt.Add(c.Duration), true
}

func (c *Competency) RequiresKind(kind string) bool {
	for _, k := range c.RequiredKinds {
		if k == kind {
			return true
		}
	}
	return false
}
