package models

import (
	"time"

	id "certflow/pkg/domain"
)

// NotificationKind names a notification type. Dedup is keyed on recipient
// and kind.
type NotificationKind string

const (
	KindDocumentReminder    NotificationKind = "document_reminder"
	KindEvaluatorStall      NotificationKind = "evaluator_stall"
	KindDeadlineApproaching NotificationKind = "deadline_approaching"
	KindNewAssignment       NotificationKind = "new_assignment"
	KindEvaluationResult    NotificationKind = "evaluation_result"
	KindCertificateExpiring NotificationKind = "certificate_expiring"
	KindCertificateExpired  NotificationKind = "certificate_expired"
	KindExpirySummary       NotificationKind = "expiry_summary"
)

var kindWindows = map[NotificationKind]time.Duration{
	KindDocumentReminder:    48 * time.Hour,
	KindEvaluatorStall:      24 * time.Hour,
	KindDeadlineApproaching: 24 * time.Hour,
	KindCertificateExpiring: 15 * 24 * time.Hour,
}

// Window is the cooldown during which a repeat of this kind to the same
// recipient is suppressed. Zero means the kind is never deduped.
func (k NotificationKind) Window() time.Duration {
	return kindWindows[k]
}

// MaxWindow is the longest cooldown of any kind; ledger entries older than
// this can never suppress a send.
func MaxWindow() time.Duration {
	var longest time.Duration
	for _, w := range kindWindows {
		longest = max(longest, w)
	}
	return longest
}

// NotificationLogEntry is an append-only record of a successful send.
// Subject references the process or certificate for traceability only.
type NotificationLogEntry struct {
	Recipient id.UserID        `json:"recipient"`
	Kind      NotificationKind `json:"kind"`
	SentAt    time.Time        `json:"sent_at"`
	Subject   string           `json:"subject,omitempty"`
}

// Payload is the structured notification content. The notifier owns
// rendering; the engine only fills facts.
type Payload struct {
	ProcessID     string         `json:"process_id,omitempty"`
	CertificateID string         `json:"certificate_id,omitempty"`
	CompetencyID  string         `json:"competency_id,omitempty"`
	Level         int            `json:"level,omitempty"`
	Stage         Stage          `json:"stage,omitempty"`
	Outcome       Outcome        `json:"outcome,omitempty"`
	Note          string         `json:"note,omitempty"`
	EvaluatorName string         `json:"evaluator_name,omitempty"`
	Deadline      *time.Time     `json:"deadline,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	Summary       *ExpirySummary `json:"summary,omitempty"`
}

// ExpirySummary is the admin report for one expiry sweep.
type ExpirySummary struct {
	Count        int            `json:"count"`
	ByCompetency map[string]int `json:"by_competency"`
	SweptAt      time.Time      `json:"swept_at"`
}

func NewExpirySummary(expired []*Certificate, now time.Time) *ExpirySummary {
	s := &ExpirySummary{ByCompetency: make(map[string]int), SweptAt: now}
	for _, c := range expired {
		s.Count++
		s.ByCompetency[c.CompetencyID.String()]++
	}
	return s
}

func ProcessSubject(p id.ProcessID) string         { return "process:" + p.String() }
func CertificateSubject(c id.CertificateID) string { return "certificate:" + c.String() }
