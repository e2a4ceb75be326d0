// Package scheduler runs the periodic sweep: time-windowed reminders for
// processes and certificates, then certificate expiry.
//
// A sweep evaluates every job at one logical time. Jobs run in a fixed
// order; records within a job run on a bounded worker pool, each under its
// own timeout. A failing record is logged and counted and the sweep moves on.
// Failed sends leave no ledger entry, so the next sweep retries them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"certflow/internal/certification/certificate"
	"certflow/internal/certification/integrity"
	"certflow/internal/certification/ledger"
	"certflow/internal/certification/models"
	"certflow/internal/certification/ports"
	dErrors "certflow/pkg/domain-errors"
	audit "certflow/pkg/platform/audit"
	"certflow/pkg/requestcontext"
)

// Sweep predicates.
const (
	ReminderDelay       = 7 * 24 * time.Hour
	StallDelay          = 3 * 24 * time.Hour
	DeadlineLead        = 5 * 24 * time.Hour
	ExpiringWindowStart = 29 * 24 * time.Hour
	ExpiringWindowEnd   = 30 * 24 * time.Hour
)

const (
	defaultWorkers       = 8
	defaultSweepTimeout  = 10 * time.Minute
	defaultRecordTimeout = 15 * time.Second
)

// Job names, in execution order.
const (
	JobDocumentReminder    = "document_reminder"
	JobEvaluatorStall      = "evaluator_stall"
	JobDeadlineApproaching = "deadline_approaching"
	JobCertificateExpiring = "certificate_expiring"
	JobCertificateExpiry   = "certificate_expiry"
)

// ErrSweepInProgress is returned when a sweep is requested while another is
// still running in this process.
var ErrSweepInProgress = dErrors.New(dErrors.CodeConflict, "sweep already in progress")

type Deliverer interface {
	Deliver(ctx context.Context, d ledger.Delivery, now time.Time) (ledger.Outcome, error)
}

// Expirer runs the certificate expiry transition.
type Expirer interface {
	Sweep(ctx context.Context, now time.Time) (*certificate.ExpiryReport, error)
}

type Metrics interface {
	ObserveJob(job, result string, n int)
	ObserveSweep(start time.Time)
	IncrementSweepRejected()
	IncrementQuarantined()
}

type Scheduler struct {
	repo           ports.Repository
	documents      ports.DocumentStore
	deliverer      Deliverer
	expirer        Expirer
	guard          *integrity.Guard
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
	metrics        Metrics
	tracer         trace.Tracer
	workers        int
	sweepTimeout   time.Duration
	recordTimeout  time.Duration

	running atomic.Bool
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Scheduler) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithSweepTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sweepTimeout = d
		}
	}
}

func WithRecordTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.recordTimeout = d
		}
	}
}

func New(repo ports.Repository, documents ports.DocumentStore, deliverer Deliverer, expirer Expirer, opts ...Option) (*Scheduler, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if expirer == nil {
		return nil, fmt.Errorf("expirer is required")
	}
	s := &Scheduler{
		repo:          repo,
		documents:     documents,
		deliverer:     deliverer,
		expirer:       expirer,
		logger:        slog.Default(),
		tracer:        otel.Tracer("certflow/scheduler"),
		workers:       defaultWorkers,
		sweepTimeout:  defaultSweepTimeout,
		recordTimeout: defaultRecordTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	var guardMetrics integrity.Metrics
	if s.metrics != nil {
		guardMetrics = s.metrics
	}
	s.guard = integrity.NewGuard(repo, s.auditPublisher, s.logger, guardMetrics)
	return s, nil
}

// JobReport counts what one job did. Candidates are the records the
// selection query returned; NotDue are those the per-record predicate then
// excluded.
type JobReport struct {
	Job        string `json:"job"`
	Candidates int    `json:"candidates"`
	NotDue     int    `json:"not_due"`
	Sent       int    `json:"sent"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

type SweepReport struct {
	SweepID  string        `json:"sweep_id"`
	Now      time.Time     `json:"now"`
	Jobs     []*JobReport  `json:"jobs"`
	Expired  int           `json:"expired"`
	Duration time.Duration `json:"duration"`
}

// Job returns the report for name, or nil.
func (r *SweepReport) Job(name string) *JobReport {
	for _, j := range r.Jobs {
		if j.Job == name {
			return j
		}
	}
	return nil
}

// Failures totals failed records and failed job selections.
func (r *SweepReport) Failures() int {
	total := 0
	for _, j := range r.Jobs {
		total += j.Failed
		if j.Error != "" {
			total++
		}
	}
	return total
}

// RunSweep evaluates every job at now. Overlapping calls on the same
// Scheduler fail fast with ErrSweepInProgress; serializing sweeps across
// processes is the trigger's responsibility.
func (s *Scheduler) RunSweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.IncrementSweepRejected()
		}
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	report := &SweepReport{SweepID: uuid.NewString(), Now: now}

	ctx = requestcontext.WithSweepID(ctx, report.SweepID)
	ctx = requestcontext.WithTime(ctx, now)
	ctx, cancel := context.WithTimeout(ctx, s.sweepTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "scheduler.sweep", trace.WithAttributes(
		attribute.String("certflow.sweep_id", report.SweepID),
		attribute.String("certflow.now", now.Format(time.RFC3339)),
	))
	defer span.End()

	s.logger.InfoContext(ctx, "sweep started", "sweep_id", report.SweepID, "now", now)

	jobs := []struct {
		name string
		run  func(context.Context, time.Time, *JobReport) error
	}{
		{JobDocumentReminder, s.documentReminders},
		{JobEvaluatorStall, s.evaluatorStalls},
		{JobDeadlineApproaching, s.deadlineAlerts},
		{JobCertificateExpiring, s.expiringSoon},
		{JobCertificateExpiry, func(ctx context.Context, now time.Time, jr *JobReport) error {
			expired, err := s.expire(ctx, now, jr)
			report.Expired = expired
			return err
		}},
	}
	for _, job := range jobs {
		jr := &JobReport{Job: job.name}
		report.Jobs = append(report.Jobs, jr)
		if err := ctx.Err(); err != nil {
			jr.Error = err.Error()
			continue
		}
		s.runJob(ctx, now, jr, job.run)
	}

	report.Duration = time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveSweep(start)
	}
	if report.Failures() > 0 {
		span.SetStatus(codes.Error, "sweep had failures")
	}
	span.SetAttributes(attribute.Int("certflow.expired", report.Expired))

	s.emitCompleted(ctx, report)
	s.logger.InfoContext(ctx, "sweep completed",
		"sweep_id", report.SweepID,
		"expired", report.Expired,
		"failures", report.Failures(),
		"duration", report.Duration,
	)
	return report, nil
}

func (s *Scheduler) runJob(ctx context.Context, now time.Time, jr *JobReport, run func(context.Context, time.Time, *JobReport) error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.job", trace.WithAttributes(attribute.String("certflow.job", jr.Job)))
	defer span.End()

	if err := run(ctx, now, jr); err != nil {
		jr.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "job selection failed")
		s.logger.ErrorContext(ctx, "sweep job failed",
			append([]any{"job", jr.Job, "error", err}, requestcontext.CorrelationAttrs(ctx)...)...)
	}
	span.SetAttributes(
		attribute.Int("certflow.candidates", jr.Candidates),
		attribute.Int("certflow.sent", jr.Sent),
		attribute.Int("certflow.skipped", jr.Skipped),
		attribute.Int("certflow.failed", jr.Failed),
	)
	if s.metrics != nil {
		s.metrics.ObserveJob(jr.Job, "sent", jr.Sent)
		s.metrics.ObserveJob(jr.Job, "skipped", jr.Skipped)
		s.metrics.ObserveJob(jr.Job, "failed", jr.Failed)
		s.metrics.ObserveJob(jr.Job, "not_due", jr.NotDue)
	}
}

// recordResult is the fate of one record within a job.
type recordResult int

const (
	resultFailed recordResult = iota
	resultNotDue
	resultSent
	resultSkipped
)

// forEach runs fn over items on the worker pool and tallies results into jr.
func forEach[T any](ctx context.Context, s *Scheduler, jr *JobReport, items []T, fn func(context.Context, T) (recordResult, error)) {
	jr.Candidates = len(items)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, item := range items {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, s.recordTimeout)
			defer cancel()
			result, err := runRecord(rctx, item, fn)
			if err != nil {
				s.logger.WarnContext(rctx, "sweep record failed",
					append([]any{"job", jr.Job, "error", err}, requestcontext.CorrelationAttrs(rctx)...)...)
			}

			mu.Lock()
			defer mu.Unlock()
			switch result {
			case resultSent:
				jr.Sent++
			case resultSkipped:
				jr.Skipped++
			case resultNotDue:
				jr.NotDue++
			default:
				jr.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
}

// runRecord turns a panic in fn into a failed record so one bad row cannot
// take the process down with it.
func runRecord[T any](ctx context.Context, item T, fn func(context.Context, T) (recordResult, error)) (result recordResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = resultFailed, fmt.Errorf("record panicked: %v", r)
		}
	}()
	return fn(ctx, item)
}

func (s *Scheduler) deliver(ctx context.Context, d ledger.Delivery, now time.Time) (recordResult, error) {
	outcome, err := s.deliverer.Deliver(ctx, d, now)
	if err != nil {
		if outcome == ledger.OutcomeSent {
			// Delivered but not logged; count it as sent.
			return resultSent, err
		}
		s.emitNotificationFailed(ctx, d, now)
		return resultFailed, err
	}
	if outcome == ledger.OutcomeSkipped {
		return resultSkipped, nil
	}
	return resultSent, nil
}

// inspect quarantines a selected process that breaks an invariant.
func (s *Scheduler) inspect(ctx context.Context, p *models.Process) error {
	if v := integrity.Inspect(p); v != nil {
		return s.guard.Quarantine(ctx, p, v)
	}
	return nil
}

func (s *Scheduler) competency(ctx context.Context, p *models.Process) (*models.Competency, error) {
	comp, err := s.repo.GetCompetency(ctx, p.CompetencyID)
	if err != nil {
		return nil, fmt.Errorf("load competency %s: %w", p.CompetencyID, err)
	}
	return comp, nil
}

func (s *Scheduler) evaluatorUser(ctx context.Context, p *models.Process) (*models.Evaluator, error) {
	if !p.HasEvaluator() {
		return nil, errors.New("process has no evaluator")
	}
	ev, err := s.repo.GetEvaluator(ctx, *p.EvaluatorID)
	if err != nil {
		return nil, fmt.Errorf("load evaluator %s: %w", p.EvaluatorID, err)
	}
	return ev, nil
}

func (s *Scheduler) emitNotificationFailed(ctx context.Context, d ledger.Delivery, now time.Time) {
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Action:    string(audit.EventNotificationFailed),
		Subject:   d.Subject,
		UserID:    d.Recipient,
		ActorID:   requestcontext.ActorID(ctx),
		Reason:    string(d.Kind),
		SweepID:   requestcontext.SweepID(ctx),
		Timestamp: now,
	})
}

func (s *Scheduler) emitCompleted(ctx context.Context, r *SweepReport) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:    string(audit.EventSweepCompleted),
		Subject:   "sweep:" + r.SweepID,
		ActorID:   requestcontext.ActorID(ctx),
		Reason:    fmt.Sprintf("expired=%d failures=%d", r.Expired, r.Failures()),
		SweepID:   r.SweepID,
		Timestamp: r.Now,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", string(audit.EventSweepCompleted), "error", err)
	}
}
