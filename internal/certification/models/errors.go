package models

import (
	dErrors "certflow/pkg/domain-errors"
)

// Caller-visible failure reasons. Services return these values directly (or
// wrapped) so callers can match them with errors.Is.
var (
	ErrProcessNotFound     = dErrors.New(dErrors.CodeNotFound, "process not found")
	ErrEvaluatorNotFound   = dErrors.New(dErrors.CodeNotFound, "evaluator not found")
	ErrCompetencyNotFound  = dErrors.New(dErrors.CodeNotFound, "competency not found")
	ErrCertificateNotFound = dErrors.New(dErrors.CodeNotFound, "certificate not found")

	ErrEvaluatorInactive     = dErrors.New(dErrors.CodeValidation, "evaluator inactive")
	ErrEvaluatorNotQualified = dErrors.New(dErrors.CodeValidation, "evaluator not qualified")
	ErrInvalidOutcome        = dErrors.New(dErrors.CodeValidation, "invalid evaluation outcome")
	ErrInconclusiveReReview  = dErrors.New(dErrors.CodeValidation, "re-review must conclude with approved or rejected")
	ErrInvalidStage          = dErrors.New(dErrors.CodeValidation, "invalid stage for requested transition")
	ErrInvalidLevel          = dErrors.New(dErrors.CodeValidation, "level must be at least 1")
	ErrUnknownDocumentKind   = dErrors.New(dErrors.CodeValidation, "document kind not required by competency")

	ErrAlreadyFinalized     = dErrors.New(dErrors.CodeConflict, "already finalized")
	ErrAlreadyAssigned      = dErrors.New(dErrors.CodeConflict, "process already assigned")
	ErrEvaluatorAtCapacity  = dErrors.New(dErrors.CodeConflict, "evaluator at capacity")
	ErrActiveProcessExists  = dErrors.New(dErrors.CodeConflict, "candidate already has an active process")
	ErrConcurrentUpdate     = dErrors.New(dErrors.CodeConflict, "process was modified concurrently")
	ErrCertificateNotActive = dErrors.New(dErrors.CodeConflict, "certificate is not active")

	ErrNotAssignedEvaluator = dErrors.New(dErrors.CodeForbidden, "caller is not the assigned evaluator")
	ErrNotProcessOwner      = dErrors.New(dErrors.CodeForbidden, "caller does not own this process")

	ErrQuarantined = dErrors.New(dErrors.CodeInvariantViolation, "process is quarantined pending manual correction")
)

// InvariantViolation describes a record whose stored state breaks a model
// invariant. It is never repaired automatically.
type InvariantViolation struct {
	Entity string
	ID     string
	Reason string
}

func (v *InvariantViolation) Error() string {
	return v.Entity + " " + v.ID + " violates invariant: " + v.Reason
}
