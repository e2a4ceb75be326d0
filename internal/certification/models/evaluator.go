package models

import (
	"slices"
	"time"

	id "certflow/pkg/domain"
	pstrings "certflow/pkg/platform/strings"
)

// Evaluator reviews candidates for the competencies in Capabilities.
// Capabilities is a normalized set of competency ids; matching is exact
// membership, never substring.
type Evaluator struct {
	ID           id.EvaluatorID `json:"id"`
	UserID       id.UserID      `json:"user_id"`
	Name         string         `json:"name"`
	Active       bool           `json:"active"`
	Capabilities []string       `json:"capabilities"`
	Capacity     int            `json:"capacity"`
	CreatedAt    time.Time      `json:"created_at"`
}

func NewEvaluator(userID id.UserID, name string, capabilities []id.CompetencyID, capacity int, now time.Time) *Evaluator {
	caps := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		caps = append(caps, c.String())
	}
	return &Evaluator{
		ID:           id.NewEvaluatorID(),
		UserID:       userID,
		Name:         name,
		Active:       true,
		Capabilities: pstrings.NormalizeSet(caps),
		Capacity:     capacity,
		CreatedAt:    now,
	}
}

func (e *Evaluator) Covers(competency id.CompetencyID) bool {
	return slices.Contains(e.Capabilities, competency.String())
}

// CanTake checks the evaluator may receive one more assignment for
// competency given active current non-terminal assignments.
func (e *Evaluator) CanTake(competency id.CompetencyID, active int) error {
	if !e.Active {
		return ErrEvaluatorInactive
	}
	if !e.Covers(competency) {
		return ErrEvaluatorNotQualified
	}
	if active >= e.Capacity {
		return ErrEvaluatorAtCapacity
	}
	return nil
}

func (e *Evaluator) Clone() *Evaluator {
	if e == nil {
		return nil
	}
	c := *e
	c.Capabilities = slices.Clone(e.Capabilities)
	return &c
}
