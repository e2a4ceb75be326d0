package models

import (
	"time"

	id "certflow/pkg/domain"
)

type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusApproved CandidateStatus = "approved"
	CandidateStatusRejected CandidateStatus = "rejected"
)

// Candidate is a user's standing application for one competency. A user has
// at most one Candidate per competency; repeat requests reuse it.
type Candidate struct {
	ID           id.CandidateID  `json:"id"`
	UserID       id.UserID       `json:"user_id"`
	CompetencyID id.CompetencyID `json:"competency_id"`
	Level        int             `json:"level"`
	Status       CandidateStatus `json:"status"`
	RequestedAt  time.Time       `json:"requested_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewCandidate(userID id.UserID, competencyID id.CompetencyID, level int, now time.Time) (*Candidate, error) {
	if level < 1 {
		return nil, ErrInvalidLevel
	}
	return &Candidate{
		ID:           id.NewCandidateID(),
		UserID:       userID,
		CompetencyID: competencyID,
		Level:        level,
		Status:       CandidateStatusPending,
		RequestedAt:  now,
		UpdatedAt:    now,
	}, nil
}

// ApplyReapplication resets a candidate whose previous process ended.
func (c *Candidate) ApplyReapplication(level int, now time.Time) {
	c.Level = level
	c.Status = CandidateStatusPending
	c.RequestedAt = now
	c.UpdatedAt = now
}

// ApplyResult mirrors a finished process's result onto the candidate.
func (c *Candidate) ApplyResult(stage Stage, now time.Time) {
	switch stage {
	case StageApproved:
		c.Status = CandidateStatusApproved
	case StageRejected:
		c.Status = CandidateStatusRejected
	default:
		return
	}
	c.UpdatedAt = now
}
