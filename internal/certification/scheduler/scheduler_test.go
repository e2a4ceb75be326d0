package scheduler

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

	"certflow/internal/certification/certificate"
	"certflow/internal/certification/ledger"
	"certflow/internal/certification/models"
	"certflow/internal/certification/ports"
	"certflow/internal/certification/store/memory"
	"certflow/internal/notify"
	id "certflow/pkg/domain"
	audit "certflow/pkg/platform/audit"
	"certflow/pkg/platform/audit/publisher"
	auditmemory "certflow/pkg/platform/audit/store/memory"
)

const day = 24 * time.Hour

const welding id.CompetencyID = "welding"

type SchedulerSuite struct {
	suite.Suite
	ctx       context.Context
	t0        time.Time
	store     *memory.InMemoryStore
	notifier  *notify.MemoryNotifier
	events    *auditmemory.InMemoryStore
	scheduler *Scheduler
	evaluator *models.Evaluator
	admin     id.UserID
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.ctx = context.Background()
	s.t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	s.store = memory.New()
	s.notifier = notify.NewMemoryNotifier()
	s.events = auditmemory.NewInMemoryStore()
	s.admin = id.NewUserID()
	s.store.GrantCapability(s.admin, ports.CapabilityManageCandidates)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := publisher.NewPublisher(s.events)

	s.Require().NoError(s.store.SaveCompetency(s.ctx, models.NewCompetency(
		welding, "TIG welding",
		[]string{"id", "cv", "training_record", "medical", "photo"},
		10*day, 365*day,
	)))
	s.evaluator = models.NewEvaluator(id.NewUserID(), "Ada", []id.CompetencyID{welding}, 5, s.t0)
	s.Require().NoError(s.store.SaveEvaluator(s.ctx, s.evaluator))

	l, err := ledger.New(s.store, s.notifier, ledger.WithLogger(logger))
	s.Require().NoError(err)
	certs, err := certificate.New(s.store, l, s.store, certificate.WithLogger(logger), certificate.WithAuditPublisher(pub))
	s.Require().NoError(err)
	s.scheduler, err = New(s.store, s.store, l, certs,
		WithLogger(logger),
		WithAuditPublisher(pub),
		WithWorkers(4),
	)
	s.Require().NoError(err)
}

func (s *SchedulerSuite) requested(at time.Time) *models.Process {
	cand, err := models.NewCandidate(id.NewUserID(), welding, 2, at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveCandidate(s.ctx, cand))
	p := models.NewProcess(cand, at)
	s.Require().NoError(s.store.CreateProcess(s.ctx, p))
	return p
}

func (s *SchedulerSuite) assigned(at time.Time) *models.Process {
	p := s.requested(at)
	p.ApplyAssignment(s.evaluator.ID, "", at)
	s.Require().NoError(s.store.SaveProcess(s.ctx, p, models.StageRequested))
	return p
}

func (s *SchedulerSuite) certificate(expiresAt time.Time) *models.Certificate {
	p := s.assigned(s.t0)
	p.ApplyEvaluation(models.OutcomeApproved, s.t0)
	s.Require().NoError(s.store.SaveProcess(s.ctx, p, models.StageUnderEvaluation))
	cert := models.NewCertificate(p, 0, s.t0)
	cert.ExpiresAt = &expiresAt
	s.Require().NoError(s.store.CreateCertificate(s.ctx, cert))
	return cert
}

func (s *SchedulerSuite) sweep(at time.Time) *SweepReport {
	report, err := s.scheduler.RunSweep(s.ctx, at)
	s.Require().NoError(err)
	return report
}

// -----------------------------------------------------------------------------
// Document reminders
// -----------------------------------------------------------------------------
// Justification for unit tests: reminder timing and the dedup window are the
// user-visible contract of the sweep.

func (s *SchedulerSuite) TestDocumentReminderCadence() {
	p := s.requested(s.t0)

	r := s.sweep(s.t0.Add(7*day + time.Hour))
	s.Equal(1, r.Job(JobDocumentReminder).Sent)

	r = s.sweep(s.t0.Add(7*day + 11*time.Hour))
	s.Zero(r.Job(JobDocumentReminder).Sent)
	s.Equal(1, r.Job(JobDocumentReminder).Skipped)

	r = s.sweep(s.t0.Add(9*day + 2*time.Hour))
	s.Equal(1, r.Job(JobDocumentReminder).Sent)

	s.Equal(2, s.notifier.Count(p.CandidateUserID, models.KindDocumentReminder))
}

func (s *SchedulerSuite) TestNoReminderBeforeDelay() {
	s.requested(s.t0)
	r := s.sweep(s.t0.Add(7 * day))
	s.Zero(r.Job(JobDocumentReminder).Candidates)
	s.Empty(s.notifier.Sent())
}

func (s *SchedulerSuite) TestNoReminderWhenDocumentsComplete() {
	p := s.requested(s.t0)
	for _, kind := range []string{"id", "cv", "training_record", "medical", "photo"} {
		s.Require().NoError(s.store.SubmitDocument(s.ctx, &models.Document{
			CandidateID: p.CandidateID, Kind: kind, Status: models.DocumentStatusSubmitted, UploadedAt: s.t0,
		}))
	}
	r := s.sweep(s.t0.Add(8 * day))
	s.Equal(1, r.Job(JobDocumentReminder).NotDue)
	s.Empty(s.notifier.Sent())
}

func (s *SchedulerSuite) TestFailedSendIsRetriedNextSweep() {
	p := s.requested(s.t0)
	s.notifier.Fail(errors.New("webhook down"))

	r := s.sweep(s.t0.Add(8 * day))
	s.Equal(1, r.Job(JobDocumentReminder).Failed)
	s.Empty(s.store.NotificationLog())
	s.Len(s.events.ListByAction(s.ctx, audit.EventNotificationFailed), 1)

	s.notifier.Fail(nil)
	r = s.sweep(s.t0.Add(8*day + time.Hour))
	s.Equal(1, r.Job(JobDocumentReminder).Sent)
	s.Equal(1, s.notifier.Count(p.CandidateUserID, models.KindDocumentReminder))
}

func (s *SchedulerSuite) TestQuarantinedProcessesAreNeverSelected() {
	p := s.requested(s.t0)
	s.Require().NoError(s.store.QuarantineProcess(s.ctx, p.ID, "manual hold", s.t0))

	r := s.sweep(s.t0.Add(8 * day))
	s.Zero(r.Job(JobDocumentReminder).Candidates)
	s.Empty(s.notifier.Sent())
}

// -----------------------------------------------------------------------------
// Evaluator reminders
// -----------------------------------------------------------------------------

func (s *SchedulerSuite) TestEvaluatorStall() {
	s.assigned(s.t0)

	r := s.sweep(s.t0.Add(3 * day))
	s.Zero(r.Job(JobEvaluatorStall).Candidates)

	r = s.sweep(s.t0.Add(3*day + time.Minute))
	s.Equal(1, r.Job(JobEvaluatorStall).Sent)

	r = s.sweep(s.t0.Add(3*day + 23*time.Hour))
	s.Equal(1, r.Job(JobEvaluatorStall).Skipped)

	r = s.sweep(s.t0.Add(4*day + 2*time.Minute))
	s.Equal(1, r.Job(JobEvaluatorStall).Sent)
	s.Equal(2, s.notifier.Count(s.evaluator.UserID, models.KindEvaluatorStall))
}

func (s *SchedulerSuite) TestDeadlineApproachingBoundaries() {
	s.assigned(s.t0) // deadline t0+10d

	r := s.sweep(s.t0.Add(5*day - time.Minute))
	s.Zero(r.Job(JobDeadlineApproaching).Sent)
	s.Equal(1, r.Job(JobDeadlineApproaching).NotDue)

	r = s.sweep(s.t0.Add(5 * day))
	s.Equal(1, r.Job(JobDeadlineApproaching).Sent)

	r = s.sweep(s.t0.Add(10 * day))
	s.Equal(1, r.Job(JobDeadlineApproaching).NotDue)
	s.Equal(1, s.notifier.Count(s.evaluator.UserID, models.KindDeadlineApproaching))
}

func (s *SchedulerSuite) TestBrokenProcessIsQuarantinedDuringSweep() {
	p := s.assigned(s.t0)
	p.EvaluatorID = nil
	s.Require().NoError(s.store.SaveProcess(s.ctx, p, models.StageUnderEvaluation))

	r := s.sweep(s.t0.Add(4 * day))
	s.Equal(1, r.Job(JobEvaluatorStall).Failed)

	stored, err := s.store.GetProcess(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(stored.Quarantined)

	r = s.sweep(s.t0.Add(5 * day))
	s.Zero(r.Job(JobEvaluatorStall).Candidates)
	s.Zero(r.Job(JobDeadlineApproaching).Candidates)
}

func (s *SchedulerSuite) TestProcessWithoutAssignmentTimeIsQuarantined() {
	p := s.assigned(s.t0)
	p.AssignedAt = nil
	s.Require().NoError(s.store.SaveProcess(s.ctx, p, models.StageUnderEvaluation))

	r := s.sweep(s.t0.Add(6 * day))
	s.Equal(1, r.Job(JobDeadlineApproaching).Failed)
	s.Zero(s.notifier.Count(s.evaluator.UserID, models.KindDeadlineApproaching))

	stored, err := s.store.GetProcess(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(stored.Quarantined)
	s.Contains(stored.QuarantineReason, "assignment time")

	r = s.sweep(s.t0.Add(7 * day))
	s.Zero(r.Job(JobDeadlineApproaching).Candidates)
}

func TestRunRecordContainsPanics(t *testing.T) {
	result, err := runRecord(context.Background(), 1, func(context.Context, int) (recordResult, error) {
		var p *models.Process
		_ = p.AssignedAt
		return resultSent, nil
	})
	assert.Equal(t, resultFailed, result)
	assert.ErrorContains(t, err, "panicked")
}

// -----------------------------------------------------------------------------
// Certificates
// -----------------------------------------------------------------------------

func (s *SchedulerSuite) TestExpiringSoonWindowAndDedup() {
	now := s.t0.Add(400 * day)
	inside := s.certificate(now.Add(29*day + 12*time.Hour))
	s.certificate(now.Add(28 * day))
	s.certificate(now.Add(31 * day))

	r := s.sweep(now)
	s.Equal(1, r.Job(JobCertificateExpiring).Candidates)
	s.Equal(1, r.Job(JobCertificateExpiring).Sent)

	r = s.sweep(now.Add(6 * time.Hour))
	s.Equal(1, r.Job(JobCertificateExpiring).Skipped)
	s.Equal(1, s.notifier.Count(inside.HolderUserID, models.KindCertificateExpiring))
}

func (s *SchedulerSuite) TestExpiryRunsLastAndIsIdempotent() {
	now := s.t0.Add(400 * day)
	cert := s.certificate(now.Add(-time.Second))

	r := s.sweep(now)
	s.Equal(1, r.Expired)
	s.Equal(JobCertificateExpiry, r.Jobs[len(r.Jobs)-1].Job)
	s.Equal(2, r.Job(JobCertificateExpiry).Sent)
	s.Equal(1, s.notifier.Count(cert.HolderUserID, models.KindCertificateExpired))
	s.Equal(1, s.notifier.Count(s.admin, models.KindExpirySummary))

	before := len(s.notifier.Sent())
	r = s.sweep(now.Add(time.Second))
	s.Zero(r.Expired)
	s.Len(s.notifier.Sent(), before)
}

func (s *SchedulerSuite) TestSweepCompletedIsAudited() {
	r := s.sweep(s.t0)
	events := s.events.ListByAction(s.ctx, audit.EventSweepCompleted)
	s.Require().Len(events, 1)
	s.Equal(r.SweepID, events[0].SweepID)
	s.Equal("system", events[0].ActorID)
	s.Len(r.Jobs, 5)
}

// -----------------------------------------------------------------------------
// Single flight
// -----------------------------------------------------------------------------

type blockingExpirer struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingExpirer) Sweep(ctx context.Context, _ time.Time) (*certificate.ExpiryReport, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &certificate.ExpiryReport{}, nil
}

func TestOverlappingSweepIsRejected(t *testing.T) {
	store := memory.New()
	l, err := ledger.New(store, notify.NewMemoryNotifier())
	require.NoError(t, err)
	expirer := &blockingExpirer{started: make(chan struct{}), release: make(chan struct{})}
	sched, err := New(store, store, l, expirer)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sched.RunSweep(context.Background(), time.Now())
		done <- err
	}()
	<-expirer.started

	_, err = sched.RunSweep(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(expirer.release)
	require.NoError(t, <-done)

	_, err = sched.RunSweep(context.Background(), time.Now())
	assert.NoError(t, err)
}

func TestSweepTimeoutStopsRemainingJobs(t *testing.T) {
	store := memory.New()
	l, err := ledger.New(store, notify.NewMemoryNotifier())
	require.NoError(t, err)
	expirer := &blockingExpirer{started: make(chan struct{}), release: make(chan struct{})}
	sched, err := New(store, store, l, expirer, WithSweepTimeout(20*time.Millisecond))
	require.NoError(t, err)

	report, err := sched.RunSweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 5, len(report.Jobs))
}

func TestRunnerTriggersSweeps(t *testing.T) {
	store := memory.New()
	events := auditmemory.NewInMemoryStore()
	l, err := ledger.New(store, notify.NewMemoryNotifier())
	require.NoError(t, err)
	certs, err := certificate.New(store, l, store)
	require.NoError(t, err)
	sched, err := New(store, store, l, certs, WithAuditPublisher(publisher.NewPublisher(events)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewRunner(sched, 5*time.Millisecond, nil, nil).Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return len(events.ListByAction(ctx, audit.EventSweepCompleted)) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
