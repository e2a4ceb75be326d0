package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certflow/internal/certification/certificate"
	"certflow/internal/certification/ledger"
	"certflow/internal/certification/models"
	"certflow/internal/certification/ports/mocks"
	"certflow/internal/certification/store/memory"
	"certflow/internal/notify"
	id "certflow/pkg/domain"
	dErrors "certflow/pkg/domain-errors"
	audit "certflow/pkg/platform/audit"
	"certflow/pkg/platform/audit/publisher"
	auditmemory "certflow/pkg/platform/audit/store/memory"
	"certflow/pkg/testutil"
)

const welding id.CompetencyID = "welding"

type ProcessSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *testutil.Clock
	store     *memory.InMemoryStore
	notifier  *notify.MemoryNotifier
	events    *auditmemory.InMemoryStore
	service   *Service
	evaluator *models.Evaluator
	user      id.UserID
}

func TestProcessSuite(t *testing.T) {
	suite.Run(t, new(ProcessSuite))
}

func (s *ProcessSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = testutil.NewClock(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	s.store = memory.New()
	s.notifier = notify.NewMemoryNotifier()
	s.events = auditmemory.NewInMemoryStore()
	s.user = id.NewUserID()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := publisher.NewPublisher(s.events)

	s.Require().NoError(s.store.SaveCompetency(s.ctx, models.NewCompetency(
		welding, "TIG welding", []string{"ID", "cv", "training_record"}, 30*24*time.Hour, 365*24*time.Hour,
	)))
	s.evaluator = models.NewEvaluator(id.NewUserID(), "Ada", []id.CompetencyID{welding}, 2, s.clock.Now())
	s.Require().NoError(s.store.SaveEvaluator(s.ctx, s.evaluator))

	l, err := ledger.New(s.store, s.notifier, ledger.WithLogger(logger))
	s.Require().NoError(err)
	certs, err := certificate.New(s.store, l, s.store, certificate.WithAuditPublisher(pub), certificate.WithLogger(logger))
	s.Require().NoError(err)
	s.service, err = New(s.store, s.store, certs, l,
		WithClock(s.clock.Now),
		WithLogger(logger),
		WithAuditPublisher(pub),
	)
	s.Require().NoError(err)
}

func (s *ProcessSuite) request() *models.Process {
	p, err := s.service.Request(s.ctx, RequestInput{UserID: s.user, CompetencyID: welding, Level: 2})
	s.Require().NoError(err)
	return p
}

func (s *ProcessSuite) underEvaluation() *models.Process {
	p := s.request()
	p.ApplyAssignment(s.evaluator.ID, "", s.clock.Now())
	s.Require().NoError(s.store.SaveProcess(s.ctx, p, models.StageRequested))
	return p
}

func (s *ProcessSuite) submit(p *models.Process, outcome models.Outcome) (*EvaluationResult, error) {
	return s.service.SubmitEvaluation(s.ctx, SubmitInput{
		ProcessID:   p.ID,
		EvaluatorID: s.evaluator.ID,
		Outcome:     outcome,
		Note:        "reviewed",
	})
}

// -----------------------------------------------------------------------------
// Request
// -----------------------------------------------------------------------------
// Justification for unit tests: a candidate may only have one open process
// and the candidate record is reused across attempts.

func (s *ProcessSuite) TestRequestCreatesRequestedProcess() {
	p := s.request()
	s.Equal(models.StageRequested, p.Stage)
	s.Equal(2, p.Level)
	s.Equal(s.user, p.CandidateUserID)
	s.Equal(s.clock.Now(), p.StartedAt)
	s.Len(s.events.ListByAction(s.ctx, audit.EventProcessRequested), 1)
}

func (s *ProcessSuite) TestSecondRequestWhileOpenConflicts() {
	s.request()
	_, err := s.service.Request(s.ctx, RequestInput{UserID: s.user, CompetencyID: welding, Level: 2})
	s.ErrorIs(err, models.ErrActiveProcessExists)
}

func (s *ProcessSuite) TestRequestAfterRejectionReusesCandidate() {
	first := s.underEvaluation()
	_, err := s.submit(first, models.OutcomeRejected)
	s.Require().NoError(err)

	second, err := s.service.Request(s.ctx, RequestInput{UserID: s.user, CompetencyID: welding, Level: 3})
	s.Require().NoError(err)
	s.Equal(first.CandidateID, second.CandidateID)
	s.Equal(3, second.Level)

	cand, err := s.store.GetCandidate(s.ctx, second.CandidateID)
	s.Require().NoError(err)
	s.Equal(models.CandidateStatusPending, cand.Status)
}

func (s *ProcessSuite) TestRequestValidation() {
	_, err := s.service.Request(s.ctx, RequestInput{UserID: s.user, CompetencyID: "unknown", Level: 1})
	s.ErrorIs(err, models.ErrCompetencyNotFound)

	_, err = s.service.Request(s.ctx, RequestInput{UserID: s.user, CompetencyID: welding, Level: 0})
	s.ErrorIs(err, models.ErrInvalidLevel)

	_, err = s.service.Request(s.ctx, RequestInput{CompetencyID: welding, Level: 1})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

// -----------------------------------------------------------------------------
// Documents
// -----------------------------------------------------------------------------

func (s *ProcessSuite) TestDocumentsCompleteStampsOnceAndKeepsStage() {
	p := s.request()
	for i, kind := range []string{"cv", "id"} {
		ready, err := s.service.SubmitDocument(s.ctx, SubmitDocumentInput{ProcessID: p.ID, CallerID: s.user, Kind: kind})
		s.Require().NoError(err)
		s.False(ready, "document %d", i)
	}
	ready, err := s.service.SubmitDocument(s.ctx, SubmitDocumentInput{ProcessID: p.ID, CallerID: s.user, Kind: "training_record"})
	s.Require().NoError(err)
	s.True(ready)

	stored, err := s.service.Get(s.ctx, p.ID, nil)
	s.Require().NoError(err)
	s.Equal(models.StageRequested, stored.Stage)
	s.Require().NotNil(stored.DocumentsCompletedAt)
	stamped := *stored.DocumentsCompletedAt

	s.clock.Advance(time.Hour)
	ready, err = s.service.CheckDocuments(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(ready)
	stored, err = s.service.Get(s.ctx, p.ID, nil)
	s.Require().NoError(err)
	s.Equal(stamped, *stored.DocumentsCompletedAt)
	s.Len(s.events.ListByAction(s.ctx, audit.EventDocumentsCompleted), 1)
}

func (s *ProcessSuite) TestSubmitDocumentGuards() {
	p := s.request()

	_, err := s.service.SubmitDocument(s.ctx, SubmitDocumentInput{ProcessID: p.ID, CallerID: id.NewUserID(), Kind: "cv"})
	s.ErrorIs(err, models.ErrNotProcessOwner)

	_, err = s.service.SubmitDocument(s.ctx, SubmitDocumentInput{ProcessID: p.ID, CallerID: s.user, Kind: "passport_photo"})
	s.ErrorIs(err, models.ErrUnknownDocumentKind)

	_, err = s.service.SubmitDocument(s.ctx, SubmitDocumentInput{ProcessID: id.NewProcessID(), CallerID: s.user, Kind: "cv"})
	s.ErrorIs(err, models.ErrProcessNotFound)
}

// -----------------------------------------------------------------------------
// Evaluation
// -----------------------------------------------------------------------------
// Justification for unit tests: evaluation is the only path to a terminal
// stage and to certificate issue.

func (s *ProcessSuite) TestApprovalIssuesCertificateAndFinalizes() {
	p := s.underEvaluation()

	result, err := s.submit(p, models.OutcomeApproved)
	s.Require().NoError(err)
	s.Equal(models.StageApproved, result.Process.Stage)
	s.Require().NotNil(result.Certificate)
	s.Equal(s.clock.Now().Add(365*24*time.Hour), *result.Certificate.ExpiresAt)
	s.Equal(result.Certificate.IssuedAt, s.clock.Now())
	s.NoError(result.NotifyErr)

	cand, err := s.store.GetCandidate(s.ctx, p.CandidateID)
	s.Require().NoError(err)
	s.Equal(models.CandidateStatusApproved, cand.Status)
	s.Equal(1, s.notifier.Count(s.user, models.KindEvaluationResult))

	_, err = s.submit(p, models.OutcomeApproved)
	s.ErrorIs(err, models.ErrAlreadyFinalized)

	evaluations, err := s.service.Evaluations(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Len(evaluations, 1)
}

func (s *ProcessSuite) TestInconclusiveThenReReview() {
	p := s.underEvaluation()

	result, err := s.submit(p, models.OutcomeInconclusive)
	s.Require().NoError(err)
	s.Equal(models.StagePendingReview, result.Process.Stage)
	s.Nil(result.Certificate)
	s.Nil(result.Process.Result)

	_, err = s.submit(p, models.OutcomeInconclusive)
	s.ErrorIs(err, models.ErrInconclusiveReReview)

	result, err = s.submit(p, models.OutcomeRejected)
	s.Require().NoError(err)
	s.Equal(models.StageRejected, result.Process.Stage)
	s.Nil(result.Certificate)
	s.Equal(2, s.notifier.Count(s.user, models.KindEvaluationResult))
}

func (s *ProcessSuite) TestOnlyAssignedEvaluatorMaySubmit() {
	p := s.underEvaluation()
	_, err := s.service.SubmitEvaluation(s.ctx, SubmitInput{
		ProcessID:   p.ID,
		EvaluatorID: id.NewEvaluatorID(),
		Outcome:     models.OutcomeApproved,
	})
	s.ErrorIs(err, models.ErrNotAssignedEvaluator)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ProcessSuite) TestSubmitBeforeAssignmentIsInvalidStage() {
	p := s.request()
	_, err := s.submit(p, models.OutcomeApproved)
	s.ErrorIs(err, models.ErrInvalidStage)
}

func (s *ProcessSuite) TestUnknownOutcomeRejected() {
	p := s.underEvaluation()
	_, err := s.submit(p, models.Outcome("maybe"))
	s.ErrorIs(err, models.ErrInvalidOutcome)
}

func (s *ProcessSuite) TestNotificationFailureDoesNotUndoEvaluation() {
	p := s.underEvaluation()
	s.notifier.Fail(errors.New("webhook down"))

	result, err := s.submit(p, models.OutcomeApproved)
	s.Require().NoError(err)
	s.Error(result.NotifyErr)

	stored, err := s.store.GetProcess(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StageApproved, stored.Stage)
}

func (s *ProcessSuite) TestConcurrentSubmissionsSingleWinner() {
	p := s.underEvaluation()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.submit(p, models.OutcomeApproved)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeConflict), "unexpected error %v", err)
	}
	s.Equal(1, succeeded)
	certs, err := s.store.FindCertificates(s.ctx, models.CertificateQuery{})
	s.Require().NoError(err)
	s.Len(certs, 1)
}

// -----------------------------------------------------------------------------
// Integrity
// -----------------------------------------------------------------------------

func (s *ProcessSuite) TestBrokenProcessIsQuarantined() {
	p := s.underEvaluation()
	// corrupt the stored record: under evaluation without an evaluator
	p.EvaluatorID = nil
	s.Require().NoError(s.store.SaveProcess(s.ctx, p, models.StageUnderEvaluation))

	_, err := s.submit(p, models.OutcomeApproved)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	stored, err := s.service.Get(s.ctx, p.ID, nil)
	s.Require().NoError(err)
	s.True(stored.Quarantined)

	_, err = s.submit(p, models.OutcomeApproved)
	s.ErrorIs(err, models.ErrQuarantined)
	s.Len(s.events.ListByAction(s.ctx, audit.EventInvariantViolation), 1)
}

func (s *ProcessSuite) TestUnauthorizedReadLeavesBrokenProcessAlone() {
	p := s.underEvaluation()
	p.EvaluatorID = nil
	s.Require().NoError(s.store.SaveProcess(s.ctx, p, models.StageUnderEvaluation))

	denied := dErrors.New(dErrors.CodeForbidden, "not yours")
	_, err := s.service.Get(s.ctx, p.ID, func(context.Context, *models.Process) error { return denied })
	s.ErrorIs(err, denied)

	stored, err := s.store.GetProcess(s.ctx, p.ID)
	s.Require().NoError(err)
	s.False(stored.Quarantined)
	s.Empty(s.events.ListByAction(s.ctx, audit.EventInvariantViolation))

	stored, err = s.service.Get(s.ctx, p.ID, func(context.Context, *models.Process) error { return nil })
	s.Require().NoError(err)
	s.True(stored.Quarantined)
}

// candidateOutage fails candidate reads once the process is set up.
type candidateOutage struct {
	*memory.InMemoryStore
}

func (candidateOutage) GetCandidate(context.Context, id.CandidateID) (*models.Candidate, error) {
	return nil, errors.New("connection reset")
}

func (s *ProcessSuite) TestFailedReadLeavesProcessUntouched() {
	p := s.underEvaluation()

	l, err := ledger.New(s.store, s.notifier)
	s.Require().NoError(err)
	certs, err := certificate.New(s.store, l, s.store)
	s.Require().NoError(err)
	svc, err := New(candidateOutage{s.store}, s.store, certs, l, WithClock(s.clock.Now))
	s.Require().NoError(err)

	_, err = svc.SubmitEvaluation(s.ctx, SubmitInput{
		ProcessID:   p.ID,
		EvaluatorID: s.evaluator.ID,
		Outcome:     models.OutcomeApproved,
	})
	s.Require().Error(err)

	stored, err := s.store.GetProcess(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StageUnderEvaluation, stored.Stage)
	s.Nil(stored.Result)
	evaluations, err := s.store.ListEvaluations(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Empty(evaluations)
	_, err = s.store.FindCertificateByProcess(s.ctx, p.ID)
	s.Error(err)

	res, err := s.submit(stored, models.OutcomeApproved)
	s.Require().NoError(err)
	s.NotNil(res.Certificate)
}

func TestCheckDocumentsSurfacesStoreOutage(t *testing.T) {
	ctrl := gomock.NewController(t)
	docs := mocks.NewMockDocumentStore(ctrl)
	docs.EXPECT().IsComplete(gomock.Any(), gomock.Any(), []string{"cv"}).Return(false, errors.New("timeout"))

	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveCompetency(ctx, models.NewCompetency(welding, "TIG", []string{"cv"}, 0, 0)))
	l, err := ledger.New(store, notify.NewMemoryNotifier())
	require.NoError(t, err)
	certs, err := certificate.New(store, l, store)
	require.NoError(t, err)
	svc, err := New(store, docs, certs, l)
	require.NoError(t, err)

	p, err := svc.Request(ctx, RequestInput{UserID: id.NewUserID(), CompetencyID: welding, Level: 1})
	require.NoError(t, err)

	_, err = svc.CheckDocuments(ctx, p.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}
