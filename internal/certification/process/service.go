// Package process drives a certification process through its stages:
// requested, under_evaluation, pending_review, and finally approved or
// rejected.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
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

// Issuer creates the certificate for an approved process inside the
// caller's transaction.
type Issuer interface {
	Issue(ctx context.Context, p *models.Process, competency *models.Competency, now time.Time) (*models.Certificate, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, d ledger.Delivery, now time.Time) (ledger.Outcome, error)
}

type Metrics interface {
	IncrementProcessRequested()
	ObserveEvaluation(outcome models.Outcome)
	IncrementQuarantined()
}

type Service struct {
	repo           ports.Repository
	documents      ports.DocumentStore
	issuer         Issuer
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

func New(repo ports.Repository, documents ports.DocumentStore, issuer Issuer, deliverer Deliverer, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("certificate issuer is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	s := &Service{
		repo:      repo,
		documents: documents,
		issuer:    issuer,
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

// RequestInput starts a certification attempt.
type RequestInput struct {
	UserID       id.UserID
	CompetencyID id.CompetencyID
	Level        int
}

// Request creates a requested process for the caller. The candidate record
// for (user, competency) is reused across attempts; a second attempt while
// one is still open fails with ErrActiveProcessExists.
func (s *Service) Request(ctx context.Context, in RequestInput) (*models.Process, error) {
	if in.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if in.Level < 1 {
		return nil, models.ErrInvalidLevel
	}
	if _, err := s.loadCompetency(ctx, in.CompetencyID); err != nil {
		return nil, err
	}

	now := s.clock()
	var p *models.Process
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		cand, err := s.repo.FindCandidate(ctx, in.UserID, in.CompetencyID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			cand, err = models.NewCandidate(in.UserID, in.CompetencyID, in.Level, now)
			if err != nil {
				return err
			}
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load candidate")
		default:
			if _, err := s.repo.FindActiveProcess(ctx, cand.ID); err == nil {
				return models.ErrActiveProcessExists
			} else if !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check active process")
			}
			cand.ApplyReapplication(in.Level, now)
		}

		if err := s.repo.SaveCandidate(ctx, cand); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save candidate")
		}
		p = models.NewProcess(cand, now)
		if err := s.repo.CreateProcess(ctx, p); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return models.ErrActiveProcessExists
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create process")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementProcessRequested()
	}
	s.emit(ctx, audit.EventProcessRequested, p, "", now)
	s.logger.InfoContext(ctx, "certification requested",
		"process_id", p.ID.String(),
		"competency_id", p.CompetencyID.String(),
		"level", p.Level,
	)
	return p, nil
}

// SubmitDocumentInput records one uploaded document for the process owner.
type SubmitDocumentInput struct {
	ProcessID id.ProcessID
	CallerID  id.UserID
	Kind      string
}

// SubmitDocument stores the document metadata and re-checks readiness.
func (s *Service) SubmitDocument(ctx context.Context, in SubmitDocumentInput) (bool, error) {
	p, err := s.loadChecked(ctx, in.ProcessID)
	if err != nil {
		return false, err
	}
	if p.CandidateUserID != in.CallerID {
		return false, models.ErrNotProcessOwner
	}
	if p.IsTerminal() {
		return false, models.ErrAlreadyFinalized
	}
	comp, err := s.loadCompetency(ctx, p.CompetencyID)
	if err != nil {
		return false, err
	}
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if !comp.RequiresKind(kind) {
		return false, models.ErrUnknownDocumentKind
	}

	doc := &models.Document{
		CandidateID: p.CandidateID,
		Kind:        kind,
		Status:      models.DocumentStatusSubmitted,
		UploadedAt:  s.clock(),
	}
	if err := s.documents.SubmitDocument(ctx, doc); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store document")
	}
	if p.Stage != models.StageRequested {
		return true, nil
	}
	return s.CheckDocuments(ctx, in.ProcessID)
}

// CheckDocuments reports whether every required document kind is present.
// The first time it is, DocumentsCompletedAt is stamped; the stage stays
// requested until an evaluator is assigned.
func (s *Service) CheckDocuments(ctx context.Context, processID id.ProcessID) (bool, error) {
	p, err := s.loadChecked(ctx, processID)
	if err != nil {
		return false, err
	}
	if err := p.CanMarkDocumentsComplete(); err != nil {
		return false, err
	}
	comp, err := s.loadCompetency(ctx, p.CompetencyID)
	if err != nil {
		return false, err
	}
	complete, err := s.documents.IsComplete(ctx, p.CandidateID, comp.RequiredKinds)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check documents")
	}
	if !complete || p.DocumentsCompletedAt != nil {
		return complete, nil
	}

	now := s.clock()
	expected := p.Stage
	p.ApplyDocumentsComplete(now)
	if err := s.repo.SaveProcess(ctx, p, expected); err != nil {
		return false, s.translateSaveErr(err)
	}
	s.emit(ctx, audit.EventDocumentsCompleted, p, "", now)
	s.logger.InfoContext(ctx, "documents complete", "process_id", p.ID.String())
	return true, nil
}

// SubmitInput is an evaluator's decision on a process.
type SubmitInput struct {
	ProcessID   id.ProcessID
	EvaluatorID id.EvaluatorID
	Outcome     models.Outcome
	Note        string
}

// EvaluationResult is what SubmitEvaluation committed. NotifyErr is set when
// the candidate could not be told; the evaluation stands regardless.
type EvaluationResult struct {
	Process     *models.Process
	Evaluation  *models.Evaluation
	Certificate *models.Certificate
	NotifyErr   error
}

// SubmitEvaluation applies an evaluator's outcome. Approved and rejected are
// final; inconclusive moves the process to pending_review for one re-review.
// The process write is conditional on the stage read in the same
// transaction, so of two racing submissions exactly one succeeds.
func (s *Service) SubmitEvaluation(ctx context.Context, in SubmitInput) (*EvaluationResult, error) {
	now := s.clock()
	result := &EvaluationResult{}

	var broken *models.Process
	var violation *models.InvariantViolation
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.load(ctx, in.ProcessID)
		if err != nil {
			return err
		}
		if !p.Quarantined {
			if v := integrity.Inspect(p); v != nil {
				broken, violation = p, v
				return v
			}
		}
		if err := p.CanSubmitEvaluation(in.EvaluatorID, in.Outcome); err != nil {
			return err
		}

		// Reads come first and the conditional process write leads the
		// writes, so a lost race or a failed read leaves nothing behind.
		stage := in.Outcome.Target()
		var cand *models.Candidate
		var comp *models.Competency
		if stage.IsTerminal() {
			if cand, err = s.repo.GetCandidate(ctx, p.CandidateID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load candidate")
			}
		}
		if stage == models.StageApproved {
			if comp, err = s.loadCompetency(ctx, p.CompetencyID); err != nil {
				return err
			}
		}

		expected := p.Stage
		p.ApplyEvaluation(in.Outcome, now)
		if err := s.repo.SaveProcess(ctx, p, expected); err != nil {
			return s.translateSaveErr(err)
		}
		evaluation := models.NewEvaluation(p.ID, in.EvaluatorID, in.Outcome, in.Note, now)
		if err := s.repo.AppendEvaluation(ctx, evaluation); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record evaluation")
		}
		result.Process = p
		result.Evaluation = evaluation

		if cand == nil {
			return nil
		}
		cand.ApplyResult(stage, now)
		if err := s.repo.SaveCandidate(ctx, cand); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save candidate")
		}
		if comp == nil {
			return nil
		}
		cert, err := s.issuer.Issue(ctx, p, comp, now)
		if err != nil {
			return err
		}
		result.Certificate = cert
		return nil
	})
	if violation != nil {
		return nil, s.guard.Quarantine(ctx, broken, violation)
	}
	if err != nil {
		return nil, err
	}

	p := result.Process
	if s.metrics != nil {
		s.metrics.ObserveEvaluation(in.Outcome)
	}
	s.emit(ctx, audit.EventEvaluationSubmitted, p, string(in.Outcome), now)
	s.logger.InfoContext(ctx, "evaluation submitted",
		"process_id", p.ID.String(),
		"evaluator_id", in.EvaluatorID.String(),
		"outcome", string(in.Outcome),
		"stage", string(p.Stage),
	)

	payload := models.Payload{
		ProcessID:    p.ID.String(),
		CompetencyID: p.CompetencyID.String(),
		Level:        p.Level,
		Stage:        p.Stage,
		Outcome:      in.Outcome,
		Note:         in.Note,
	}
	if result.Certificate != nil {
		payload.CertificateID = result.Certificate.ID.String()
		payload.ExpiresAt = result.Certificate.ExpiresAt
	}
	_, err = s.deliverer.Deliver(ctx, ledger.Delivery{
		Recipient: p.CandidateUserID,
		Kind:      models.KindEvaluationResult,
		Subject:   models.ProcessSubject(p.ID),
		Payload:   payload,
	}, now)
	if err != nil {
		result.NotifyErr = err
		s.logger.WarnContext(ctx, "evaluation recorded but candidate notification failed",
			"process_id", p.ID.String(),
			"error", err,
		)
		s.emit(ctx, audit.EventNotificationFailed, p, string(models.KindEvaluationResult), now)
	}
	return result, nil
}

// ReadAuthorizer decides whether the caller in ctx may see p.
type ReadAuthorizer func(ctx context.Context, p *models.Process) error

// Get returns the process. authorize runs before anything else touches the
// record; nil means the caller is trusted. A process found to break an
// invariant is quarantined on read and returned with the flag set.
func (s *Service) Get(ctx context.Context, processID id.ProcessID, authorize ReadAuthorizer) (*models.Process, error) {
	p, err := s.load(ctx, processID)
	if err != nil {
		return nil, err
	}
	if authorize != nil {
		if err := authorize(ctx, p); err != nil {
			return nil, err
		}
	}
	if !p.Quarantined {
		if v := integrity.Inspect(p); v != nil {
			_ = s.guard.Quarantine(ctx, p, v)
			p.ApplyQuarantine(v.Reason, s.clock())
		}
	}
	return p, nil
}

// Evaluations lists the submitted outcomes of a process, oldest first.
func (s *Service) Evaluations(ctx context.Context, processID id.ProcessID) ([]*models.Evaluation, error) {
	if _, err := s.load(ctx, processID); err != nil {
		return nil, err
	}
	evaluations, err := s.repo.ListEvaluations(ctx, processID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evaluations")
	}
	return evaluations, nil
}

func (s *Service) load(ctx context.Context, processID id.ProcessID) (*models.Process, error) {
	p, err := s.repo.GetProcess(ctx, processID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrProcessNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load process")
	}
	return p, nil
}

// loadChecked loads a process that is about to be mutated outside a
// transaction and runs the integrity guard on it.
func (s *Service) loadChecked(ctx context.Context, processID id.ProcessID) (*models.Process, error) {
	p, err := s.load(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) loadCompetency(ctx context.Context, competencyID id.CompetencyID) (*models.Competency, error) {
	comp, err := s.repo.GetCompetency(ctx, competencyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrCompetencyNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load competency")
	}
	return comp, nil
}

func (s *Service) translateSaveErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return models.ErrConcurrentUpdate
	case errors.Is(err, sentinel.ErrNotFound):
		return models.ErrProcessNotFound
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save process")
	}
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, p *models.Process, reason string, now time.Time) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:    string(action),
		Subject:   models.ProcessSubject(p.ID),
		UserID:    p.CandidateUserID,
		ActorID:   requestcontext.ActorID(ctx),
		ProcessID: p.ID.String(),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		SweepID:   requestcontext.SweepID(ctx),
		Timestamp: now,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", string(action), "error", err)
	}
}
