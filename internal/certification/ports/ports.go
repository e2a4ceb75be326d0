// Package ports declares the collaborators the certification engine depends
// on. Adapters live in store/ and internal/notify; the engine never imports
// them directly.
package ports

import (
	"context"
	"time"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
	audit "certflow/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/ports_mock.go -package=mocks Notifier,AuthorizationOracle,EvaluatorDirectory,DocumentStore,LedgerStore,AuditPublisher

// CapabilityManageCandidates is held by administrators who receive expiry
// summaries and may assign evaluators or trigger sweeps.
const CapabilityManageCandidates = "manage_candidates"

// Clock supplies logical "now".
type Clock func() time.Time

// ProcessStore persists processes. SaveProcess is a conditional write: it
// fails with sentinel.ErrConflict unless the stored stage equals
// expectedStage and the stored version equals p.Version. On success the
// store increments p.Version.
type ProcessStore interface {
	CreateProcess(ctx context.Context, p *models.Process) error
	GetProcess(ctx context.Context, processID id.ProcessID) (*models.Process, error)
	SaveProcess(ctx context.Context, p *models.Process, expectedStage models.Stage) error
	QuarantineProcess(ctx context.Context, processID id.ProcessID, reason string, at time.Time) error
	FindProcessesNeeding(ctx context.Context, q models.ProcessQuery) ([]*models.Process, error)
	FindActiveProcess(ctx context.Context, candidateID id.CandidateID) (*models.Process, error)
	CountActiveAssignments(ctx context.Context, evaluatorID id.EvaluatorID) (int, error)
}

type CandidateStore interface {
	GetCandidate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error)
	FindCandidate(ctx context.Context, userID id.UserID, competencyID id.CompetencyID) (*models.Candidate, error)
	SaveCandidate(ctx context.Context, c *models.Candidate) error
}

// EvaluatorStore reads and writes evaluator records. LockEvaluator loads the
// evaluator and holds it until the surrounding transaction ends.
type EvaluatorStore interface {
	GetEvaluator(ctx context.Context, evaluatorID id.EvaluatorID) (*models.Evaluator, error)
	FindEvaluatorByUser(ctx context.Context, userID id.UserID) (*models.Evaluator, error)
	LockEvaluator(ctx context.Context, evaluatorID id.EvaluatorID) (*models.Evaluator, error)
	SaveEvaluator(ctx context.Context, e *models.Evaluator) error
}

type CompetencyStore interface {
	GetCompetency(ctx context.Context, competencyID id.CompetencyID) (*models.Competency, error)
	SaveCompetency(ctx context.Context, c *models.Competency) error
}

type EvaluationStore interface {
	AppendEvaluation(ctx context.Context, e *models.Evaluation) error
	ListEvaluations(ctx context.Context, processID id.ProcessID) ([]*models.Evaluation, error)
}

// CertificateStore persists certificates. SaveCertificate is conditional on
// the stored status and version, like SaveProcess.
type CertificateStore interface {
	CreateCertificate(ctx context.Context, c *models.Certificate) error
	GetCertificate(ctx context.Context, certificateID id.CertificateID) (*models.Certificate, error)
	FindCertificateByProcess(ctx context.Context, processID id.ProcessID) (*models.Certificate, error)
	SaveCertificate(ctx context.Context, c *models.Certificate, expectedStatus models.CertificateStatus) error
	FindCertificates(ctx context.Context, q models.CertificateQuery) ([]*models.Certificate, error)
}

// LedgerStore is the notification log. Entries are never updated or deleted.
type LedgerStore interface {
	AppendNotificationLog(ctx context.Context, entry models.NotificationLogEntry) error
	ExistsLogEntry(ctx context.Context, recipient id.UserID, kind models.NotificationKind, after time.Time) (bool, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository is everything the engine persists.
type Repository interface {
	ProcessStore
	CandidateStore
	EvaluatorStore
	CompetencyStore
	EvaluationStore
	CertificateStore
	LedgerStore
	TxRunner
}

// Notifier delivers a notification. It owns rendering and transport.
type Notifier interface {
	Send(ctx context.Context, recipient id.UserID, kind models.NotificationKind, payload models.Payload) error
}

type AuthorizationOracle interface {
	ListPrincipalsWithCapability(ctx context.Context, capability string) ([]id.UserID, error)
	HasCapability(ctx context.Context, userID id.UserID, capability string) (bool, error)
}

type EvaluatorDirectory interface {
	ListActive(ctx context.Context, competencyID id.CompetencyID) ([]*models.Evaluator, error)
}

type DocumentStore interface {
	IsComplete(ctx context.Context, candidateID id.CandidateID, requiredKinds []string) (bool, error)
	SubmitDocument(ctx context.Context, doc *models.Document) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
