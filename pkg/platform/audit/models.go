package audit

import (
	"context"
	"time"

	id "certflow/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can route and retain them differently.
type EventCategory string

const (
	// CategoryCompliance covers certification decisions and issued credentials.
	// These carry long retention requirements.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers integrity problems that need an operator.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// Severity levels used for alert routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID            string
	Category      EventCategory
	Timestamp     time.Time
	Action        string
	Subject       string
	UserID        id.UserID
	ActorID       string
	ProcessID     string
	CertificateID string
	Reason        string
	RequestID     string
	SweepID       string
	Severity      Severity
}

type AuditEvent string

const (
	EventProcessRequested    AuditEvent = "process_requested"
	EventDocumentsCompleted  AuditEvent = "documents_completed"
	EventEvaluatorAssigned   AuditEvent = "evaluator_assigned"
	EventEvaluationSubmitted AuditEvent = "evaluation_submitted"
	EventCertificateIssued   AuditEvent = "certificate_issued"
	EventCertificateExpired  AuditEvent = "certificate_expired"
	EventNotificationSent    AuditEvent = "notification_sent"
	EventNotificationFailed  AuditEvent = "notification_failed"
	EventInvariantViolation  AuditEvent = "invariant_violation"
	EventSweepCompleted      AuditEvent = "sweep_completed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventEvaluationSubmitted: CategoryCompliance,
	EventCertificateIssued:   CategoryCompliance,
	EventCertificateExpired:  CategoryCompliance,

	EventInvariantViolation: CategorySecurity,

	EventProcessRequested:   CategoryOperations,
	EventDocumentsCompleted: CategoryOperations,
	EventEvaluatorAssigned:  CategoryOperations,
	EventNotificationSent:   CategoryOperations,
	EventNotificationFailed: CategoryOperations,
	EventSweepCompleted:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Sink accepts audit events for persistence or forwarding.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a Sink that can also be queried.
type Store interface {
	Sink
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
