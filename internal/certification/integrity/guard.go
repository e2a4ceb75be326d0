// Package integrity detects processes whose stored state breaks the model
// invariants and quarantines them. Nothing here repairs data.
package integrity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
	dErrors "certflow/pkg/domain-errors"
	audit "certflow/pkg/platform/audit"
	"certflow/pkg/requestcontext"
)

type Quarantiner interface {
	QuarantineProcess(ctx context.Context, processID id.ProcessID, reason string, at time.Time) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Metrics interface {
	IncrementQuarantined()
}

// Guard inspects loaded processes before any automated mutation.
type Guard struct {
	store   Quarantiner
	audit   AuditPublisher
	logger  *slog.Logger
	metrics Metrics
}

func NewGuard(store Quarantiner, publisher AuditPublisher, logger *slog.Logger, metrics Metrics) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, audit: publisher, logger: logger, metrics: metrics}
}

// Inspect returns the violation, if any, without side effects.
func Inspect(p *models.Process) *models.InvariantViolation {
	var v *models.InvariantViolation
	if err := p.CheckInvariants(); err != nil && errors.As(err, &v) {
		return v
	}
	return nil
}

// Check returns ErrQuarantined for flagged processes, and quarantines and
// reports processes that break an invariant. ctx must not carry a
// transaction that the caller is about to roll back.
func (g *Guard) Check(ctx context.Context, p *models.Process) error {
	if p.Quarantined {
		return models.ErrQuarantined
	}
	if v := Inspect(p); v != nil {
		return g.Quarantine(ctx, p, v)
	}
	return nil
}

// Quarantine flags p and returns the caller-facing error.
func (g *Guard) Quarantine(ctx context.Context, p *models.Process, v *models.InvariantViolation) error {
	now := requestcontext.Now(ctx)
	attrs := append([]any{
		"process_id", p.ID.String(),
		"stage", string(p.Stage),
		"reason", v.Reason,
		"severity", string(audit.SeverityCritical),
	}, requestcontext.CorrelationAttrs(ctx)...)
	g.logger.ErrorContext(ctx, "process invariant violated, quarantining", attrs...)

	if err := g.store.QuarantineProcess(ctx, p.ID, v.Reason, now); err != nil {
		g.logger.ErrorContext(ctx, "failed to quarantine process", "process_id", p.ID.String(), "error", err)
	} else if g.metrics != nil {
		g.metrics.IncrementQuarantined()
	}

	if g.audit != nil {
		_ = g.audit.Emit(ctx, audit.Event{
			Action:    string(audit.EventInvariantViolation),
			Subject:   models.ProcessSubject(p.ID),
			ActorID:   requestcontext.ActorID(ctx),
			UserID:    p.CandidateUserID,
			ProcessID: p.ID.String(),
			Reason:    v.Reason,
			RequestID: requestcontext.RequestID(ctx),
			SweepID:   requestcontext.SweepID(ctx),
			Severity:  audit.SeverityCritical,
			Timestamp: now,
		})
	}
	return dErrors.Wrap(v, dErrors.CodeInvariantViolation, "process failed integrity check and was quarantined")
}
