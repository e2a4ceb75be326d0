package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "certflow/pkg/domain"
)

type ProcessSuite struct {
	suite.Suite
	now       time.Time
	evaluator id.EvaluatorID
}

func TestProcessSuite(t *testing.T) {
	suite.Run(t, new(ProcessSuite))
}

func (s *ProcessSuite) SetupTest() {
	s.now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	s.evaluator = id.NewEvaluatorID()
}

func (s *ProcessSuite) newProcess() *Process {
	cand, err := NewCandidate(id.NewUserID(), "welding", 2, s.now)
	s.Require().NoError(err)
	return NewProcess(cand, s.now)
}

func (s *ProcessSuite) assigned() *Process {
	p := s.newProcess()
	s.Require().NoError(p.CanAssign())
	p.ApplyAssignment(s.evaluator, "first pick", s.now)
	return p
}

func (s *ProcessSuite) TestNewProcessStartsRequested() {
	p := s.newProcess()
	s.Equal(StageRequested, p.Stage)
	s.Equal(2, p.Level)
	s.NoError(p.CheckInvariants())
}

func (s *ProcessSuite) TestAssignmentMovesToUnderEvaluation() {
	p := s.assigned()
	s.Equal(StageUnderEvaluation, p.Stage)
	s.Equal(s.evaluator, *p.EvaluatorID)
	s.Equal(s.now, *p.AssignedAt)
	s.NoError(p.CheckInvariants())
}

func (s *ProcessSuite) TestSecondAssignmentIsDuplicate() {
	p := s.assigned()
	s.ErrorIs(p.CanAssign(), ErrAlreadyAssigned)
}

func (s *ProcessSuite) TestEvaluationOutcomes() {
	tests := []struct {
		outcome Outcome
		want    Stage
	}{
		{OutcomeApproved, StageApproved},
		{OutcomeRejected, StageRejected},
		{OutcomeInconclusive, StagePendingReview},
	}
	for _, tt := range tests {
		s.Run(string(tt.outcome), func() {
			p := s.assigned()
			s.Require().NoError(p.CanSubmitEvaluation(s.evaluator, tt.outcome))
			s.Equal(tt.want, p.ApplyEvaluation(tt.outcome, s.now.Add(time.Hour)))
			s.NoError(p.CheckInvariants())
			s.NotNil(p.EvaluatedAt)
			if tt.want.IsTerminal() {
				s.Require().NotNil(p.Result)
				s.Equal(tt.outcome, *p.Result)
				s.NotNil(p.EndedAt)
			} else {
				s.Nil(p.Result)
			}
		})
	}
}

func (s *ProcessSuite) TestReReviewMustConclude() {
	p := s.assigned()
	p.ApplyEvaluation(OutcomeInconclusive, s.now)

	s.ErrorIs(p.CanSubmitEvaluation(s.evaluator, OutcomeInconclusive), ErrInconclusiveReReview)
	s.NoError(p.CanSubmitEvaluation(s.evaluator, OutcomeRejected))
}

func (s *ProcessSuite) TestTerminalStagesAreFinal() {
	p := s.assigned()
	p.ApplyEvaluation(OutcomeApproved, s.now)

	s.ErrorIs(p.CanSubmitEvaluation(s.evaluator, OutcomeApproved), ErrAlreadyFinalized)
	s.ErrorIs(p.CanAssign(), ErrAlreadyFinalized)
	s.ErrorIs(p.CanMarkDocumentsComplete(), ErrAlreadyFinalized)
}

func (s *ProcessSuite) TestOnlyAssignedEvaluatorMaySubmit() {
	p := s.assigned()
	s.ErrorIs(p.CanSubmitEvaluation(id.NewEvaluatorID(), OutcomeApproved), ErrNotAssignedEvaluator)
}

func (s *ProcessSuite) TestSubmitBeforeAssignmentIsInvalidStage() {
	p := s.newProcess()
	s.ErrorIs(p.CanSubmitEvaluation(s.evaluator, OutcomeApproved), ErrInvalidStage)
}

func (s *ProcessSuite) TestUnknownOutcome() {
	p := s.assigned()
	s.ErrorIs(p.CanSubmitEvaluation(s.evaluator, Outcome("maybe")), ErrInvalidOutcome)
}

func (s *ProcessSuite) TestDocumentsCompleteStampsOnce() {
	p := s.newProcess()
	s.Require().NoError(p.CanMarkDocumentsComplete())
	p.ApplyDocumentsComplete(s.now)
	p.ApplyDocumentsComplete(s.now.Add(time.Hour))

	s.Equal(StageRequested, p.Stage)
	s.Equal(s.now, *p.DocumentsCompletedAt)
}

func (s *ProcessSuite) TestQuarantineBlocksMutations() {
	p := s.assigned()
	p.ApplyQuarantine("manual", s.now)
	s.ErrorIs(p.CanSubmitEvaluation(s.evaluator, OutcomeApproved), ErrQuarantined)
}

func (s *ProcessSuite) TestCloneIsDeep() {
	p := s.assigned()
	c := p.Clone()
	*c.AssignedAt = s.now.Add(time.Hour)
	*c.EvaluatorID = id.NewEvaluatorID()
	s.Equal(s.now, *p.AssignedAt)
	s.Equal(s.evaluator, *p.EvaluatorID)
}

func TestCheckInvariants(t *testing.T) {
	ev := id.NewEvaluatorID()
	approved := OutcomeApproved
	rejected := OutcomeRejected
	assignedAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(p *Process)
		wantErr bool
	}{
		{"requested without evaluator", func(p *Process) {}, false},
		{"requested with evaluator", func(p *Process) { p.EvaluatorID = &ev }, true},
		{"under evaluation without evaluator", func(p *Process) { p.Stage = StageUnderEvaluation }, true},
		{"approved without result", func(p *Process) { p.Stage = StageApproved; p.EvaluatorID = &ev }, true},
		{"approved with rejected result", func(p *Process) {
			p.Stage = StageApproved
			p.EvaluatorID = &ev
			p.Result = &rejected
		}, true},
		{"approved consistent", func(p *Process) {
			p.Stage = StageApproved
			p.EvaluatorID = &ev
			p.AssignedAt = &assignedAt
			p.Result = &approved
		}, false},
		{"under evaluation without assignment time", func(p *Process) {
			p.Stage = StageUnderEvaluation
			p.EvaluatorID = &ev
		}, true},
		{"under evaluation consistent", func(p *Process) {
			p.Stage = StageUnderEvaluation
			p.EvaluatorID = &ev
			p.AssignedAt = &assignedAt
		}, false},
		{"requested with assignment time", func(p *Process) { p.AssignedAt = &assignedAt }, true},
		{"pending review with result", func(p *Process) {
			p.Stage = StagePendingReview
			p.EvaluatorID = &ev
			p.Result = &approved
		}, true},
		{"unknown stage", func(p *Process) { p.Stage = "archived" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand, err := NewCandidate(id.NewUserID(), "welding", 1, time.Now())
			require.NoError(t, err)
			p := NewProcess(cand, time.Now())
			tt.mutate(p)

			err = p.CheckInvariants()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var violation *InvariantViolation
			assert.True(t, errors.As(err, &violation))
		})
	}
}

func TestNewCandidateRejectsLevelZero(t *testing.T) {
	_, err := NewCandidate(id.NewUserID(), "welding", 0, time.Now())
	assert.ErrorIs(t, err, ErrInvalidLevel)
}
