// Package assignment attaches evaluators to requested processes without ever
// double-booking a process or pushing an evaluator past capacity.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"certflow/internal/certification/integrity"
	"certflow/internal/certification/ledger"
	"certflow/internal/certification/models"
	"certflow/internal/certification/ports"
	id "certflow/pkg/domain"
	dErrors "certflow/pkg/domain-errors"
	audit "certflow/pkg/platform/audit"
	"certflow/pkg/platform/sentinel"
	"certflow/pkg/requestcontext"
)

type Deliverer interface {
	Deliver(ctx context.Context, d ledger.Delivery, now time.Time) (ledger.Outcome, error)
}

type Metrics interface {
	ObserveAssignment(result string, start time.Time)
	IncrementQuarantined()
}

type Service struct {
	repo           ports.Repository
	directory      ports.EvaluatorDirectory
	deliverer      Deliverer
	guard          *integrity.Guard
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
	metrics        Metrics
	clock          ports.Clock
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock ports.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(repo ports.Repository, directory ports.EvaluatorDirectory, deliverer Deliverer, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("evaluator directory is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	s := &Service{
		repo:      repo,
		directory: directory,
		deliverer: deliverer,
		logger:    slog.Default(),
		clock:     time.Now,
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

// Result is a committed assignment. NotifyErrors holds delivery failures for
// the new-assignment notices, keyed by recipient; they never undo the
// assignment.
type Result struct {
	Process      *models.Process
	Evaluator    *models.Evaluator
	Deadline     *time.Time
	NotifyErrors map[id.UserID]error
}

// Assign attaches evaluatorID to the process. The evaluator row is locked
// for the duration of the transaction so two assignments cannot both
// observe spare capacity, and the process write is conditional on the
// requested stage so a process never gets two evaluators.
func (s *Service) Assign(ctx context.Context, processID id.ProcessID, evaluatorID id.EvaluatorID, note string) (*Result, error) {
	start := time.Now()
	now := s.clock()

	var (
		p         *models.Process
		ev        *models.Evaluator
		broken    *models.Process
		violation *models.InvariantViolation
	)
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.GetProcess(ctx, processID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return models.ErrProcessNotFound
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load process")
		}
		if !p.Quarantined {
			if v := integrity.Inspect(p); v != nil {
				broken, violation = p, v
				return v
			}
		}
		if err := p.CanAssign(); err != nil {
			return err
		}

		ev, err = s.repo.LockEvaluator(ctx, evaluatorID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return models.ErrEvaluatorNotFound
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evaluator")
		}
		active, err := s.repo.CountActiveAssignments(ctx, ev.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count assignments")
		}
		if err := ev.CanTake(p.CompetencyID, active); err != nil {
			return err
		}

		p.ApplyAssignment(ev.ID, note, now)
		if err := s.repo.SaveProcess(ctx, p, models.StageRequested); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return models.ErrConcurrentUpdate
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save process")
		}
		return nil
	})
	if violation != nil {
		s.observe("quarantined", start)
		return nil, s.guard.Quarantine(ctx, broken, violation)
	}
	if err != nil {
		s.observe(resultLabel(err), start)
		s.logger.InfoContext(ctx, "assignment rejected",
			"process_id", processID.String(),
			"evaluator_id", evaluatorID.String(),
			"error", err,
		)
		return nil, err
	}
	s.observe("assigned", start)

	result := &Result{Process: p, Evaluator: ev, NotifyErrors: map[id.UserID]error{}}
	if comp, err := s.repo.GetCompetency(ctx, p.CompetencyID); err == nil {
		if deadline, ok := comp.Deadline(*p.AssignedAt); ok {
			result.Deadline = &deadline
		}
	}

	s.emit(ctx, p, ev, now)
	s.logger.InfoContext(ctx, "evaluator assigned",
		"process_id", p.ID.String(),
		"evaluator_id", ev.ID.String(),
		"competency_id", p.CompetencyID.String(),
	)

	payload := models.Payload{
		ProcessID:     p.ID.String(),
		CompetencyID:  p.CompetencyID.String(),
		Level:         p.Level,
		Stage:         p.Stage,
		Note:          note,
		EvaluatorName: ev.Name,
		Deadline:      result.Deadline,
	}
	for _, recipient := range []id.UserID{ev.UserID, p.CandidateUserID} {
		_, err := s.deliverer.Deliver(ctx, ledger.Delivery{
			Recipient: recipient,
			Kind:      models.KindNewAssignment,
			Subject:   models.ProcessSubject(p.ID),
			Payload:   payload,
		}, now)
		if err != nil {
			result.NotifyErrors[recipient] = err
			s.logger.WarnContext(ctx, "assignment committed but notification failed",
				"process_id", p.ID.String(),
				"recipient", recipient.String(),
				"error", err,
			)
		}
	}
	return result, nil
}

// Available is an evaluator that can take another assignment.
type Available struct {
	Evaluator         *models.Evaluator
	ActiveAssignments int
	Remaining         int
}

// ListAvailable returns active evaluators qualified for competency that have
// spare capacity, most spare capacity first, then by name.
func (s *Service) ListAvailable(ctx context.Context, competency id.CompetencyID) ([]*Available, error) {
	evaluators, err := s.directory.ListActive(ctx, competency)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list evaluators")
	}
	out := make([]*Available, 0, len(evaluators))
	for _, ev := range evaluators {
		if !ev.Active || !ev.Covers(competency) {
			continue
		}
		active, err := s.repo.CountActiveAssignments(ctx, ev.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count assignments")
		}
		if remaining := ev.Capacity - active; remaining > 0 {
			out = append(out, &Available{Evaluator: ev, ActiveAssignments: active, Remaining: remaining})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Remaining != out[j].Remaining {
			return out[i].Remaining > out[j].Remaining
		}
		return out[i].Evaluator.Name < out[j].Evaluator.Name
	})
	return out, nil
}

func resultLabel(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeValidation:
		return "invalid"
	case dErrors.CodeInvariantViolation:
		return "quarantined"
	default:
		return "error"
	}
}

func (s *Service) observe(result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveAssignment(result, start)
	}
}

func (s *Service) emit(ctx context.Context, p *models.Process, ev *models.Evaluator, now time.Time) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:    string(audit.EventEvaluatorAssigned),
		Subject:   models.ProcessSubject(p.ID),
		UserID:    p.CandidateUserID,
		ActorID:   requestcontext.ActorID(ctx),
		ProcessID: p.ID.String(),
		Reason:    "evaluator:" + ev.ID.String(),
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: now,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", string(audit.EventEvaluatorAssigned), "error", err)
	}
}
