//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certflow/internal/certification/models"
	"certflow/internal/certification/store/postgres"
	id "certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
	"certflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.PostgresStore
	now      time.Time
	welding  *models.Competency
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.postgres.DB))
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, postgres.Tables...))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.welding = models.NewCompetency("welding", "Welding", []string{"id", "cv"}, 30*24*time.Hour, 365*24*time.Hour)
	s.Require().NoError(s.store.SaveCompetency(ctx, s.welding))
}

func (s *PostgresStoreSuite) newProcess() *models.Process {
	ctx := context.Background()
	c, err := models.NewCandidate(id.NewUserID(), s.welding.ID, 1, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveCandidate(ctx, c))
	p := models.NewProcess(c, s.now)
	s.Require().NoError(s.store.CreateProcess(ctx, p))
	return p
}

func (s *PostgresStoreSuite) newEvaluator(capacity int) *models.Evaluator {
	e := models.NewEvaluator(id.NewUserID(), "Ada", []id.CompetencyID{s.welding.ID}, capacity, s.now)
	s.Require().NoError(s.store.SaveEvaluator(context.Background(), e))
	return e
}

func (s *PostgresStoreSuite) TestProcessRoundTrip() {
	ctx := context.Background()
	p := s.newProcess()

	got, err := s.store.GetProcess(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)
	s.Equal(models.StageRequested, got.Stage)
	s.Equal(int64(1), got.Version)
	s.True(got.StartedAt.Equal(s.now))
	s.Nil(got.EvaluatorID)

	_, err = s.store.GetProcess(ctx, id.NewProcessID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestOneOpenProcessPerCandidate() {
	ctx := context.Background()
	p := s.newProcess()

	c, err := s.store.GetCandidate(ctx, p.CandidateID)
	s.Require().NoError(err)
	err = s.store.CreateProcess(ctx, models.NewProcess(c, s.now))
	s.ErrorIs(err, sentinel.ErrConflict)

	active, err := s.store.FindActiveProcess(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, active.ID)
}

func (s *PostgresStoreSuite) TestSaveProcessIsConditional() {
	ctx := context.Background()
	p := s.newProcess()
	e := s.newEvaluator(2)

	stale := p.Clone()
	p.ApplyAssignment(e.ID, "", s.now)
	s.Require().NoError(s.store.SaveProcess(ctx, p, models.StageRequested))
	s.Equal(int64(2), p.Version)

	stale.ApplyAssignment(e.ID, "late", s.now)
	err := s.store.SaveProcess(ctx, stale, models.StageRequested)
	s.ErrorIs(err, sentinel.ErrConflict)

	n, err := s.store.CountActiveAssignments(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresStoreSuite) TestEvaluatorStageRequiresAssignmentTime() {
	ctx := context.Background()
	p := s.newProcess()
	e := s.newEvaluator(2)

	p.ApplyAssignment(e.ID, "", s.now)
	p.AssignedAt = nil
	s.Error(s.store.SaveProcess(ctx, p, models.StageRequested))

	stored, err := s.store.GetProcess(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StageRequested, stored.Stage)
	s.Nil(stored.AssignedAt)
}

func (s *PostgresStoreSuite) TestConcurrentSaveHasOneWinner() {
	ctx := context.Background()
	p := s.newProcess()
	e := s.newEvaluator(10)

	const goroutines = 20
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mine := p.Clone()
			mine.ApplyAssignment(e.ID, "", s.now)
			err := s.store.SaveProcess(ctx, mine, models.StageRequested)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestQuarantinedProcessesAreHiddenFromSweeps() {
	ctx := context.Background()
	healthy := s.newProcess()
	broken := s.newProcess()
	s.Require().NoError(s.store.QuarantineProcess(ctx, broken.ID, "stage requires evaluator", s.now))

	before := s.now.Add(time.Hour)
	found, err := s.store.FindProcessesNeeding(ctx, models.ProcessQuery{Stage: models.StageRequested, StartedBefore: &before})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(healthy.ID, found[0].ID)

	got, err := s.store.GetProcess(ctx, broken.ID)
	s.Require().NoError(err)
	s.True(got.Quarantined)
	s.Equal("stage requires evaluator", got.QuarantineReason)

	got.ApplyAssignment(s.newEvaluator(1).ID, "", s.now)
	s.ErrorIs(s.store.SaveProcess(ctx, got, models.StageRequested), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestLockEvaluatorSerializesCapacityChecks() {
	ctx := context.Background()
	e := s.newEvaluator(1)
	procs := []*models.Process{s.newProcess(), s.newProcess(), s.newProcess()}

	var (
		wg       sync.WaitGroup
		assigned atomic.Int32
	)
	for _, p := range procs {
		wg.Add(1)
		go func(p *models.Process) {
			defer wg.Done()
			err := s.store.RunInTx(ctx, func(ctx context.Context) error {
				locked, err := s.store.LockEvaluator(ctx, e.ID)
				if err != nil {
					return err
				}
				n, err := s.store.CountActiveAssignments(ctx, locked.ID)
				if err != nil {
					return err
				}
				if err := locked.CanTake(s.welding.ID, n); err != nil {
					return err
				}
				p.ApplyAssignment(locked.ID, "", s.now)
				return s.store.SaveProcess(ctx, p, models.StageRequested)
			})
			if err == nil {
				assigned.Add(1)
			}
		}(p)
	}
	wg.Wait()

	s.Equal(int32(1), assigned.Load())
	n, err := s.store.CountActiveAssignments(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresStoreSuite) TestListActiveMatchesCompetencyExactly() {
	ctx := context.Background()
	s.Require().NoError(s.store.SaveCompetency(ctx, models.NewCompetency("12", "Twelve", nil, 0, 0)))
	twelve := models.NewEvaluator(id.NewUserID(), "Twelve", []id.CompetencyID{"12"}, 1, s.now)
	hundredTwenty := models.NewEvaluator(id.NewUserID(), "HundredTwenty", []id.CompetencyID{"120"}, 1, s.now)
	s.Require().NoError(s.store.SaveEvaluator(ctx, twelve))
	s.Require().NoError(s.store.SaveEvaluator(ctx, hundredTwenty))

	found, err := s.store.ListActive(ctx, "12")
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(twelve.ID, found[0].ID)
}

func (s *PostgresStoreSuite) TestCertificateLifecycle() {
	ctx := context.Background()
	p := s.newProcess()
	cert := models.NewCertificate(p, s.welding.ValidityPeriod, s.now)
	s.Require().NoError(s.store.CreateCertificate(ctx, cert))
	s.ErrorIs(s.store.CreateCertificate(ctx, models.NewCertificate(p, 0, s.now)), sentinel.ErrConflict)

	after := s.now.Add(366 * 24 * time.Hour)
	due, err := s.store.FindCertificates(ctx, models.CertificateQuery{Status: models.CertificateStatusActive, ExpiresBefore: &after})
	s.Require().NoError(err)
	s.Require().Len(due, 1)

	stale := due[0].Clone()
	due[0].ApplyExpiry(after)
	s.Require().NoError(s.store.SaveCertificate(ctx, due[0], models.CertificateStatusActive))
	stale.ApplyExpiry(after)
	s.ErrorIs(s.store.SaveCertificate(ctx, stale, models.CertificateStatusActive), sentinel.ErrConflict)

	got, err := s.store.FindCertificateByProcess(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.CertificateStatusExpired, got.Status)
	s.Require().NotNil(got.ExpiredAt)
	s.True(got.ExpiredAt.Equal(after))
}

func (s *PostgresStoreSuite) TestNonExpiringCertificatesIgnoreExpiryFilters() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateCertificate(ctx, models.NewCertificate(s.newProcess(), 0, s.now)))

	far := s.now.Add(100 * 365 * 24 * time.Hour)
	due, err := s.store.FindCertificates(ctx, models.CertificateQuery{ExpiresBefore: &far})
	s.Require().NoError(err)
	s.Empty(due)

	all, err := s.store.FindCertificates(ctx, models.CertificateQuery{Status: models.CertificateStatusActive})
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *PostgresStoreSuite) TestNotificationLogWindow() {
	ctx := context.Background()
	user := id.NewUserID()
	entry := models.NotificationLogEntry{Recipient: user, Kind: models.KindDocumentReminder, SentAt: s.now}
	s.Require().NoError(s.store.AppendNotificationLog(ctx, entry))

	exists, err := s.store.ExistsLogEntry(ctx, user, models.KindDocumentReminder, s.now.Add(-time.Minute))
	s.Require().NoError(err)
	s.True(exists)

	exists, err = s.store.ExistsLogEntry(ctx, user, models.KindDocumentReminder, s.now)
	s.Require().NoError(err)
	s.False(exists, "the window is exclusive of its start")

	exists, err = s.store.ExistsLogEntry(ctx, user, models.KindEvaluatorStall, s.now.Add(-time.Minute))
	s.Require().NoError(err)
	s.False(exists)
}

func (s *PostgresStoreSuite) TestDocumentsCompleteIgnoresRejected() {
	ctx := context.Background()
	p := s.newProcess()
	submit := func(kind string, status models.DocumentStatus) {
		s.Require().NoError(s.store.SubmitDocument(ctx, &models.Document{
			CandidateID: p.CandidateID, Kind: kind, Status: status, UploadedAt: s.now,
		}))
	}

	submit("id", models.DocumentStatusSubmitted)
	submit("cv", models.DocumentStatusRejected)
	done, err := s.store.IsComplete(ctx, p.CandidateID, s.welding.RequiredKinds)
	s.Require().NoError(err)
	s.False(done)

	submit("cv", models.DocumentStatusSubmitted)
	done, err = s.store.IsComplete(ctx, p.CandidateID, s.welding.RequiredKinds)
	s.Require().NoError(err)
	s.True(done)
}

func (s *PostgresStoreSuite) TestCapabilities() {
	ctx := context.Background()
	admin := id.NewUserID()
	s.Require().NoError(s.store.GrantCapability(ctx, admin, "manage_candidates"))
	s.Require().NoError(s.store.GrantCapability(ctx, admin, "manage_candidates"))

	ok, err := s.store.HasCapability(ctx, admin, "manage_candidates")
	s.Require().NoError(err)
	s.True(ok)

	principals, err := s.store.ListPrincipalsWithCapability(ctx, "manage_candidates")
	s.Require().NoError(err)
	s.Equal([]id.UserID{admin}, principals)
}
