// Package certificate issues certificates for approved processes and expires
// them once their validity period has passed.
package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"certflow/internal/certification/ledger"
	"certflow/internal/certification/models"
	"certflow/internal/certification/ports"
	dErrors "certflow/pkg/domain-errors"
	audit "certflow/pkg/platform/audit"
	"certflow/pkg/platform/sentinel"
	"certflow/pkg/requestcontext"
)

const (
	defaultWorkers       = 8
	defaultRecordTimeout = 15 * time.Second
)

// Deliverer sends a notification through the dedup ledger.
type Deliverer interface {
	Deliver(ctx context.Context, d ledger.Delivery, now time.Time) (ledger.Outcome, error)
}

type Metrics interface {
	IncrementCertificateIssued()
	IncrementCertificateExpired()
	ObserveJob(job, result string, n int)
}

// Manager owns the certificate lifecycle: active on issue, expired once
// ExpiresAt has passed. The status flip is a conditional write, so two
// sweeps can never both expire (and notify for) the same certificate.
type Manager struct {
	certs          ports.CertificateStore
	deliverer      Deliverer
	oracle         ports.AuthorizationOracle
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
	metrics        Metrics
	tracer         trace.Tracer
	workers        int
	recordTimeout  time.Duration
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(m *Manager) {
		m.auditPublisher = publisher
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithWorkers bounds how many certificates are expired concurrently.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithRecordTimeout bounds the collaborator calls made for one certificate.
func WithRecordTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.recordTimeout = d
		}
	}
}

func New(certs ports.CertificateStore, deliverer Deliverer, oracle ports.AuthorizationOracle, opts ...Option) (*Manager, error) {
	if certs == nil {
		return nil, fmt.Errorf("certificate store is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("authorization oracle is required")
	}
	m := &Manager{
		certs:         certs,
		deliverer:     deliverer,
		oracle:        oracle,
		logger:        slog.Default(),
		tracer:        otel.Tracer("certflow/certificate"),
		workers:       defaultWorkers,
		recordTimeout: defaultRecordTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ExpiryDate returns issuedAt + validity, or nil when the competency's
// certificates never expire.
func ExpiryDate(issuedAt time.Time, validity time.Duration) *time.Time {
	return models.ExpiryDate(issuedAt, validity)
}

// Issue creates the active certificate for an approved process. It runs on
// the caller's context so it joins the caller's transaction.
func (m *Manager) Issue(ctx context.Context, p *models.Process, competency *models.Competency, now time.Time) (*models.Certificate, error) {
	if p.Stage != models.StageApproved {
		return nil, models.ErrInvalidStage
	}
	cert := models.NewCertificate(p, competency.ValidityPeriod, now)
	if err := m.certs.CreateCertificate(ctx, cert); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "certificate already issued for process")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create certificate")
	}
	if m.metrics != nil {
		m.metrics.IncrementCertificateIssued()
	}
	m.emit(ctx, audit.EventCertificateIssued, cert, "", now)
	m.logger.InfoContext(ctx, "certificate issued",
		"certificate_id", cert.ID.String(),
		"process_id", p.ID.String(),
		"competency_id", cert.CompetencyID.String(),
	)
	return cert, nil
}

// ExpiryReport summarizes one expiry sweep.
type ExpiryReport struct {
	Candidates         int
	Expired            []*models.Certificate
	Skipped            int
	Failed             int
	HolderNotified     int
	HolderNotifyFailed int
	SummaryRecipients  int
	SummaryFailed      int
}

// SweepExpirations expires every active certificate whose ExpiresAt is
// before now and returns the certificates this call expired.
func (m *Manager) SweepExpirations(ctx context.Context, now time.Time) ([]*models.Certificate, error) {
	report, err := m.Sweep(ctx, now)
	if err != nil {
		return nil, err
	}
	return report.Expired, nil
}

// Sweep is SweepExpirations with per-record counters. A failure on one
// certificate is logged and counted; only the initial selection can fail the
// sweep.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (*ExpiryReport, error) {
	ctx, span := m.tracer.Start(ctx, "certificate.sweep_expirations")
	defer span.End()

	due, err := m.certs.FindCertificates(ctx, models.CertificateQuery{
		Status:        models.CertificateStatusActive,
		ExpiresBefore: &now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select certificates")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to select expiring certificates")
	}

	report := &ExpiryReport{Candidates: len(due)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, cert := range due {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, m.recordTimeout)
			defer cancel()
			result := m.expireOne(rctx, cert, now)

			mu.Lock()
			defer mu.Unlock()
			switch result {
			case expireDone, expireDoneNotifyFailed:
				report.Expired = append(report.Expired, cert)
				if result == expireDone {
					report.HolderNotified++
				} else {
					report.HolderNotifyFailed++
				}
			case expireSkipped:
				report.Skipped++
			default:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Expired, func(i, j int) bool {
		return report.Expired[i].ExpiresAt.Before(*report.Expired[j].ExpiresAt)
	})

	if len(report.Expired) > 0 {
		m.sendSummary(ctx, report, now)
	}

	if m.metrics != nil {
		m.metrics.ObserveJob("certificate_expiry", "expired", len(report.Expired))
		m.metrics.ObserveJob("certificate_expiry", "skipped", report.Skipped)
		m.metrics.ObserveJob("certificate_expiry", "failed", report.Failed)
	}
	span.SetAttributes(
		attribute.Int("certflow.candidates", report.Candidates),
		attribute.Int("certflow.expired", len(report.Expired)),
		attribute.Int("certflow.failed", report.Failed),
	)
	return report, nil
}

type expireResult int

const (
	expireFailed expireResult = iota
	expireSkipped
	expireDone
	expireDoneNotifyFailed
)

func (m *Manager) expireOne(ctx context.Context, cert *models.Certificate, now time.Time) expireResult {
	if err := cert.CanExpire(now); err != nil {
		return expireSkipped
	}
	cert.ApplyExpiry(now)
	if err := m.certs.SaveCertificate(ctx, cert, models.CertificateStatusActive); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return expireSkipped
		}
		m.logger.ErrorContext(ctx, "failed to expire certificate",
			append([]any{"certificate_id", cert.ID.String(), "error", err}, requestcontext.CorrelationAttrs(ctx)...)...)
		return expireFailed
	}
	if m.metrics != nil {
		m.metrics.IncrementCertificateExpired()
	}
	m.emit(ctx, audit.EventCertificateExpired, cert, "", now)

	_, err := m.deliverer.Deliver(ctx, ledger.Delivery{
		Recipient: cert.HolderUserID,
		Kind:      models.KindCertificateExpired,
		Subject:   models.CertificateSubject(cert.ID),
		Payload: models.Payload{
			CertificateID: cert.ID.String(),
			CompetencyID:  cert.CompetencyID.String(),
			Level:         cert.Level,
			ExpiresAt:     cert.ExpiresAt,
		},
	}, now)
	if err != nil {
		// The status flip stands; the holder is not re-notified by later sweeps.
		m.logger.WarnContext(ctx, "certificate expired but holder notification failed",
			append([]any{"certificate_id", cert.ID.String(), "error", err}, requestcontext.CorrelationAttrs(ctx)...)...)
		m.emit(ctx, audit.EventNotificationFailed, cert, string(models.KindCertificateExpired), now)
		return expireDoneNotifyFailed
	}
	return expireDone
}

func (m *Manager) sendSummary(ctx context.Context, report *ExpiryReport, now time.Time) {
	summary := models.NewExpirySummary(report.Expired, now)
	principals, err := m.oracle.ListPrincipalsWithCapability(ctx, ports.CapabilityManageCandidates)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to list expiry summary recipients", "error", err)
		report.SummaryFailed++
		return
	}
	for _, principal := range principals {
		rctx, cancel := context.WithTimeout(ctx, m.recordTimeout)
		_, err := m.deliverer.Deliver(rctx, ledger.Delivery{
			Recipient: principal,
			Kind:      models.KindExpirySummary,
			Payload:   models.Payload{Summary: summary},
		}, now)
		cancel()
		if err != nil {
			m.logger.WarnContext(ctx, "expiry summary notification failed",
				"recipient", principal.String(),
				"error", err,
			)
			report.SummaryFailed++
			continue
		}
		report.SummaryRecipients++
	}
}

func (m *Manager) emit(ctx context.Context, action audit.AuditEvent, cert *models.Certificate, reason string, now time.Time) {
	if m.auditPublisher == nil {
		return
	}
	err := m.auditPublisher.Emit(ctx, audit.Event{
		Action:        string(action),
		Subject:       models.CertificateSubject(cert.ID),
		UserID:        cert.HolderUserID,
		ActorID:       requestcontext.ActorID(ctx),
		ProcessID:     cert.ProcessID.String(),
		CertificateID: cert.ID.String(),
		Reason:        reason,
		RequestID:     requestcontext.RequestID(ctx),
		SweepID:       requestcontext.SweepID(ctx),
		Timestamp:     now,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to emit audit event", "action", string(action), "error", err)
	}
}
