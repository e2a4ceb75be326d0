package models

// Stage is the phase of a certification Process.
type Stage string

const (
	StageRequested       Stage = "requested"
	StageUnderEvaluation Stage = "under_evaluation"
	StagePendingReview   Stage = "pending_review"
	StageApproved        Stage = "approved"
	StageRejected        Stage = "rejected"
)

// ActiveStages are the non-terminal stages.
var ActiveStages = []Stage{StageRequested, StageUnderEvaluation, StagePendingReview}

func (s Stage) IsValid() bool {
	switch s {
	case StageRequested, StageUnderEvaluation, StagePendingReview, StageApproved, StageRejected:
		return true
	}
	return false
}

func (s Stage) IsTerminal() bool {
	return s == StageApproved || s == StageRejected
}

// RequiresEvaluator reports whether a process in this stage must carry an
// evaluator reference.
func (s Stage) RequiresEvaluator() bool {
	return s != StageRequested
}

// Outcome is what an evaluator submits.
type Outcome string

const (
	OutcomeApproved     Outcome = "approved"
	OutcomeRejected     Outcome = "rejected"
	OutcomeInconclusive Outcome = "inconclusive"
)

func (o Outcome) IsValid() bool {
	return o == OutcomeApproved || o == OutcomeRejected || o == OutcomeInconclusive
}

// Target returns the stage an outcome moves the process into.
func (o Outcome) Target() Stage {
	switch o {
	case OutcomeApproved:
		return StageApproved
	case OutcomeRejected:
		return StageRejected
	default:
		return StagePendingReview
	}
}
