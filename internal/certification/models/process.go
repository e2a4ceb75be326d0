package models

import (
	"time"

	id "certflow/pkg/domain"
)

// Process is one certification attempt by a Candidate.
//
// Invariants:
//   - EvaluatorID is set iff Stage is under_evaluation, pending_review,
//     approved or rejected
//   - Result is set iff Stage is approved or rejected, and equals the stage
//   - Terminal stages (approved, rejected) never change again
//   - A Candidate has at most one process in a non-terminal stage
//   - Version increases by one on every persisted change and is the
//     optimistic-concurrency token for conditional writes
//
// A process whose stored state breaks these invariants is quarantined: it is
// excluded from sweeps and every mutation fails until an operator repairs it.
type Process struct {
	ID              id.ProcessID    `json:"id"`
	CandidateID     id.CandidateID  `json:"candidate_id"`
	CandidateUserID id.UserID       `json:"candidate_user_id"`
	CompetencyID    id.CompetencyID `json:"competency_id"`
	Level           int             `json:"level"`
	Stage           Stage           `json:"stage"`

	EvaluatorID    *id.EvaluatorID `json:"evaluator_id,omitempty"`
	AssignedAt     *time.Time      `json:"assigned_at,omitempty"`
	AssignmentNote string          `json:"assignment_note,omitempty"`
	Result         *Outcome        `json:"result,omitempty"`

	StartedAt            time.Time  `json:"started_at"`
	DocumentsCompletedAt *time.Time `json:"documents_completed_at,omitempty"`
	EvaluatedAt          *time.Time `json:"evaluated_at,omitempty"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`

	Quarantined      bool   `json:"quarantined"`
	QuarantineReason string `json:"quarantine_reason,omitempty"`

	Version int64 `json:"version"`
}

func NewProcess(candidate *Candidate, now time.Time) *Process {
	return &Process{
		ID:              id.NewProcessID(),
		CandidateID:     candidate.ID,
		CandidateUserID: candidate.UserID,
		CompetencyID:    candidate.CompetencyID,
		Level:           candidate.Level,
		Stage:           StageRequested,
		StartedAt:       now,
		UpdatedAt:       now,
	}
}

func (p *Process) IsTerminal() bool {
	return p.Stage.IsTerminal()
}

func (p *Process) HasEvaluator() bool {
	return p.EvaluatorID != nil && !p.EvaluatorID.IsNil()
}

// CheckInvariants reports the first broken invariant, or nil.
func (p *Process) CheckInvariants() error {
	violation := func(reason string) error {
		return &InvariantViolation{Entity: "process", ID: p.ID.String(), Reason: reason}
	}
	if !p.Stage.IsValid() {
		return violation("unknown stage " + string(p.Stage))
	}
	if p.Stage.RequiresEvaluator() && !p.HasEvaluator() {
		return violation("stage " + string(p.Stage) + " without evaluator")
	}
	if p.Stage.RequiresEvaluator() && p.AssignedAt == nil {
		return violation("stage " + string(p.Stage) + " without assignment time")
	}
	if !p.Stage.RequiresEvaluator() && (p.EvaluatorID != nil || p.AssignedAt != nil) {
		return violation("evaluator set while requested")
	}
	if p.Stage.IsTerminal() {
		if p.Result == nil {
			return violation("terminal stage without result")
		}
		if p.Result.Target() != p.Stage {
			return violation("result " + string(*p.Result) + " disagrees with stage " + string(p.Stage))
		}
	} else if p.Result != nil {
		return violation("result set on non-terminal stage")
	}
	return nil
}

// CanMarkDocumentsComplete checks the documents-complete event applies.
func (p *Process) CanMarkDocumentsComplete() error {
	if p.IsTerminal() {
		return ErrAlreadyFinalized
	}
	if p.Stage != StageRequested {
		return ErrInvalidStage
	}
	return nil
}

// ApplyDocumentsComplete stamps readiness once; the stage is unchanged and
// waits for an assignment.
func (p *Process) ApplyDocumentsComplete(now time.Time) {
	if p.DocumentsCompletedAt == nil {
		t := now
		p.DocumentsCompletedAt = &t
		p.UpdatedAt = now
	}
}

// CanAssign checks an evaluator may be attached. Evaluator eligibility is
// checked separately against the Evaluator record.
func (p *Process) CanAssign() error {
	if p.Quarantined {
		return ErrQuarantined
	}
	if p.IsTerminal() {
		return ErrAlreadyFinalized
	}
	if p.HasEvaluator() {
		return ErrAlreadyAssigned
	}
	if p.Stage != StageRequested {
		return ErrInvalidStage
	}
	return nil
}

// ApplyAssignment moves the process into under_evaluation.
// Call CanAssign first.
func (p *Process) ApplyAssignment(evaluatorID id.EvaluatorID, note string, now time.Time) {
	ev := evaluatorID
	at := now
	p.EvaluatorID = &ev
	p.AssignedAt = &at
	p.AssignmentNote = note
	p.Stage = StageUnderEvaluation
	p.UpdatedAt = now
}

// CanSubmitEvaluation checks that evaluatorID may submit outcome now.
func (p *Process) CanSubmitEvaluation(evaluatorID id.EvaluatorID, outcome Outcome) error {
	if p.Quarantined {
		return ErrQuarantined
	}
	if p.IsTerminal() {
		return ErrAlreadyFinalized
	}
	if p.Stage != StageUnderEvaluation && p.Stage != StagePendingReview {
		return ErrInvalidStage
	}
	if !p.HasEvaluator() || *p.EvaluatorID != evaluatorID {
		return ErrNotAssignedEvaluator
	}
	if !outcome.IsValid() {
		return ErrInvalidOutcome
	}
	if p.Stage == StagePendingReview && outcome == OutcomeInconclusive {
		return ErrInconclusiveReReview
	}
	return nil
}

// ApplyEvaluation records the outcome and returns the new stage.
// Call CanSubmitEvaluation first.
func (p *Process) ApplyEvaluation(outcome Outcome, now time.Time) Stage {
	at := now
	p.EvaluatedAt = &at
	p.Stage = outcome.Target()
	if p.Stage.IsTerminal() {
		result := outcome
		ended := now
		p.Result = &result
		p.EndedAt = &ended
	}
	p.UpdatedAt = now
	return p.Stage
}

// ApplyQuarantine flags the process for manual correction.
func (p *Process) ApplyQuarantine(reason string, now time.Time) {
	p.Quarantined = true
	p.QuarantineReason = reason
	p.UpdatedAt = now
}

// Clone returns a deep copy so stores never share pointers with callers.
func (p *Process) Clone() *Process {
	if p == nil {
		return nil
	}
	c := *p
	if p.EvaluatorID != nil {
		v := *p.EvaluatorID
		c.EvaluatorID = &v
	}
	if p.Result != nil {
		v := *p.Result
		c.Result = &v
	}
	c.AssignedAt = cloneTime(p.AssignedAt)
	c.DocumentsCompletedAt = cloneTime(p.DocumentsCompletedAt)
	c.EvaluatedAt = cloneTime(p.EvaluatedAt)
	c.EndedAt = cloneTime(p.EndedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
