package models

import (
	"time"

	id "certflow/pkg/domain"
)

// Evaluation is the append-only record of one submitted outcome.
type Evaluation struct {
	ID          id.EvaluationID `json:"id"`
	ProcessID   id.ProcessID    `json:"process_id"`
	EvaluatorID id.EvaluatorID  `json:"evaluator_id"`
	Outcome     Outcome         `json:"outcome"`
	Note        string          `json:"note,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

func NewEvaluation(processID id.ProcessID, evaluatorID id.EvaluatorID, outcome Outcome, note string, now time.Time) *Evaluation {
	return &Evaluation{
		ID:          id.NewEvaluationID(),
		ProcessID:   processID,
		EvaluatorID: evaluatorID,
		Outcome:     outcome,
		Note:        note,
		SubmittedAt: now,
	}
}
