// Package handler exposes the certification engine over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certflow/internal/certification/assignment"
	"certflow/internal/certification/models"
	"certflow/internal/certification/ports"
	"certflow/internal/certification/process"
	"certflow/internal/certification/scheduler"
	id "certflow/pkg/domain"
	dErrors "certflow/pkg/domain-errors"
	"certflow/pkg/platform/httputil"
	authmw "certflow/pkg/platform/middleware/auth"
	"certflow/pkg/platform/middleware/request"
	"certflow/pkg/platform/middleware/requesttime"
	"certflow/pkg/platform/sentinel"
	"certflow/pkg/requestcontext"
)

type ProcessService interface {
	Request(ctx context.Context, in process.RequestInput) (*models.Process, error)
	Get(ctx context.Context, processID id.ProcessID, authorize process.ReadAuthorizer) (*models.Process, error)
	Evaluations(ctx context.Context, processID id.ProcessID) ([]*models.Evaluation, error)
	SubmitDocument(ctx context.Context, in process.SubmitDocumentInput) (bool, error)
	CheckDocuments(ctx context.Context, processID id.ProcessID) (bool, error)
	SubmitEvaluation(ctx context.Context, in process.SubmitInput) (*process.EvaluationResult, error)
}

type AssignmentService interface {
	Assign(ctx context.Context, processID id.ProcessID, evaluatorID id.EvaluatorID, note string) (*assignment.Result, error)
	ListAvailable(ctx context.Context, competency id.CompetencyID) ([]*assignment.Available, error)
}

type Sweeper interface {
	RunSweep(ctx context.Context, now time.Time) (*scheduler.SweepReport, error)
}

// EvaluatorLookup maps an authenticated user to its evaluator record.
type EvaluatorLookup interface {
	FindEvaluatorByUser(ctx context.Context, userID id.UserID) (*models.Evaluator, error)
}

// Handler serves the /v1 API.
type Handler struct {
	processes   ProcessService
	assignments AssignmentService
	sweeper     Sweeper
	oracle      ports.AuthorizationOracle
	evaluators  EvaluatorLookup
	validator   authmw.JWTValidator
	logger      *slog.Logger
	clock       func() time.Time
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClock sets the clock pinned into each request.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func New(
	processes ProcessService,
	assignments AssignmentService,
	sweeper Sweeper,
	oracle ports.AuthorizationOracle,
	evaluators EvaluatorLookup,
	validator authmw.JWTValidator,
	opts ...Option,
) *Handler {
	h := &Handler{
		processes:   processes,
		assignments: assignments,
		sweeper:     sweeper,
		oracle:      oracle,
		evaluators:  evaluators,
		validator:   validator,
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the authenticated API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(request.RequestID)
		r.Use(requesttime.Middleware(h.clock))
		r.Use(authmw.RequireAuth(h.validator, h.logger))

		r.Post("/processes", h.handleRequestProcess)
		r.Get("/processes/{id}", h.handleGetProcess)
		r.Get("/processes/{id}/evaluations", h.handleListEvaluations)
		r.Post("/processes/{id}/documents", h.handleSubmitDocument)
		r.Post("/processes/{id}/documents/check", h.handleCheckDocuments)
		r.Post("/processes/{id}/assignment", h.handleAssign)
		r.Post("/processes/{id}/evaluation", h.handleSubmitEvaluation)
		r.Get("/competencies/{id}/evaluators", h.handleListEvaluators)
		r.Post("/admin/sweeps", h.handleRunSweep)
	})
}

func (h *Handler) handleRequestProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[createProcessRequest](w, r, h.logger)
	if !ok {
		return
	}
	competencyID, err := id.ParseCompetencyID(req.CompetencyID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid competency id"))
		return
	}

	p, err := h.processes.Request(ctx, process.RequestInput{
		UserID:       requestcontext.UserID(ctx),
		CompetencyID: competencyID,
		Level:        req.Level,
	})
	if err != nil {
		h.writeError(ctx, w, "request process", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID, ok := processIDParam(w, r)
	if !ok {
		return
	}
	p, err := h.processes.Get(ctx, processID, h.authorizeRead)
	if err != nil {
		h.writeError(ctx, w, "get process", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID, ok := processIDParam(w, r)
	if !ok {
		return
	}
	if _, err := h.processes.Get(ctx, processID, h.authorizeRead); err != nil {
		h.writeError(ctx, w, "list evaluations", err)
		return
	}
	evaluations, err := h.processes.Evaluations(ctx, processID)
	if err != nil {
		h.writeError(ctx, w, "list evaluations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, evaluationsResponse{Evaluations: evaluations})
}

func (h *Handler) handleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID, ok := processIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndValidate[submitDocumentRequest](w, r, h.logger)
	if !ok {
		return
	}
	complete, err := h.processes.SubmitDocument(ctx, process.SubmitDocumentInput{
		ProcessID: processID,
		CallerID:  requestcontext.UserID(ctx),
		Kind:      req.Kind,
	})
	if err != nil {
		h.writeError(ctx, w, "submit document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, documentsResponse{Complete: complete})
}

func (h *Handler) handleCheckDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID, ok := processIDParam(w, r)
	if !ok {
		return
	}
	if _, err := h.processes.Get(ctx, processID, h.authorizeRead); err != nil {
		h.writeError(ctx, w, "check documents", err)
		return
	}
	complete, err := h.processes.CheckDocuments(ctx, processID)
	if err != nil {
		h.writeError(ctx, w, "check documents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, documentsResponse{Complete: complete})
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID, ok := processIDParam(w, r)
	if !ok {
		return
	}
	if err := h.requireCapability(ctx, ports.CapabilityManageCandidates); err != nil {
		h.writeError(ctx, w, "assign evaluator", err)
		return
	}
	req, ok := httputil.DecodeAndValidate[assignRequest](w, r, h.logger)
	if !ok {
		return
	}
	evaluatorID, err := id.ParseEvaluatorID(req.EvaluatorID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid evaluator id"))
		return
	}

	res, err := h.assignments.Assign(ctx, processID, evaluatorID, req.Note)
	if err != nil {
		h.writeError(ctx, w, "assign evaluator", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAssignmentResponse(res))
}

func (h *Handler) handleSubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID, ok := processIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndValidate[evaluationRequest](w, r, h.logger)
	if !ok {
		return
	}

	evaluator, err := h.evaluators.FindEvaluatorByUser(ctx, requestcontext.UserID(ctx))
	if errors.Is(err, sentinel.ErrNotFound) {
		h.writeError(ctx, w, "submit evaluation", models.ErrNotAssignedEvaluator)
		return
	}
	if err != nil {
		h.writeError(ctx, w, "submit evaluation", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve evaluator"))
		return
	}

	res, err := h.processes.SubmitEvaluation(ctx, process.SubmitInput{
		ProcessID:   processID,
		EvaluatorID: evaluator.ID,
		Outcome:     models.Outcome(req.Outcome),
		Note:        req.Note,
	})
	if err != nil {
		h.writeError(ctx, w, "submit evaluation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEvaluationResponse(res))
}

func (h *Handler) handleListEvaluators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.requireCapability(ctx, ports.CapabilityManageCandidates); err != nil {
		h.writeError(ctx, w, "list evaluators", err)
		return
	}
	competencyID, err := id.ParseCompetencyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid competency id"))
		return
	}
	available, err := h.assignments.ListAvailable(ctx, competencyID)
	if err != nil {
		h.writeError(ctx, w, "list evaluators", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAvailableResponse(available))
}

// errSweepInFuture rejects sweeps ahead of the server clock: expiry cannot be
// undone and future ledger entries would mute real reminders.
var errSweepInFuture = dErrors.New(dErrors.CodeValidation, "sweep time must not be in the future")

func (h *Handler) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.requireCapability(ctx, ports.CapabilityManageCandidates); err != nil {
		h.writeError(ctx, w, "run sweep", err)
		return
	}
	now := requestcontext.Now(ctx)
	if r.ContentLength != 0 {
		req, ok := httputil.DecodeAndValidate[sweepRequest](w, r, h.logger)
		if !ok {
			return
		}
		if req.At != nil {
			if req.At.After(now) {
				h.writeError(ctx, w, "run sweep", errSweepInFuture)
				return
			}
			now = req.At.UTC()
		}
	}

	report, err := h.sweeper.RunSweep(ctx, now)
	if err != nil {
		h.writeError(ctx, w, "run sweep", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// authorizeRead lets the candidate, the assigned evaluator and case managers
// see a process.
func (h *Handler) authorizeRead(ctx context.Context, p *models.Process) error {
	caller := requestcontext.UserID(ctx)
	if p.CandidateUserID == caller {
		return nil
	}
	if p.HasEvaluator() {
		ev, err := h.evaluators.FindEvaluatorByUser(ctx, caller)
		if err == nil && ev.ID == *p.EvaluatorID {
			return nil
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve evaluator")
		}
	}
	if err := h.requireCapability(ctx, ports.CapabilityManageCandidates); err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			return models.ErrNotProcessOwner
		}
		return err
	}
	return nil
}

func (h *Handler) requireCapability(ctx context.Context, capability string) error {
	ok, err := h.oracle.HasCapability(ctx, requestcontext.UserID(ctx), capability)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "authorization unavailable")
	}
	if !ok {
		return dErrors.New(dErrors.CodeForbidden, "missing capability "+capability)
	}
	return nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	attrs := append([]any{"op", op, "error", err}, requestcontext.CorrelationAttrs(ctx)...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, "request failed", attrs...)
	default:
		h.logger.DebugContext(ctx, "request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

func processIDParam(w http.ResponseWriter, r *http.Request) (id.ProcessID, bool) {
	processID, err := id.ParseProcessID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid process id"))
		return id.ProcessID{}, false
	}
	return processID, true
}
