// Package ledger gates time-windowed notifications on the notification log.
//
// A send is suppressed when the log already holds an entry for the same
// recipient and kind newer than the kind's window. Entries are written only
// after the notifier succeeds, so a failed send is retried on the next sweep.
package ledger

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"certflow/internal/certification/models"
	"certflow/internal/certification/ports"
	id "certflow/pkg/domain"
)

// Outcome reports what Deliver did.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
)

// Delivery is one notification the engine wants sent.
type Delivery struct {
	Recipient id.UserID
	Kind      models.NotificationKind
	Subject   string
	Payload   models.Payload
}

type Metrics interface {
	ObserveNotification(kind models.NotificationKind, outcome string)
}

const lockStripes = 64

// Ledger combines the notification log with a notifier.
type Ledger struct {
	store    ports.LedgerStore
	notifier ports.Notifier
	logger   *slog.Logger
	metrics  Metrics

	stripes [lockStripes]sync.Mutex
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func New(store ports.LedgerStore, notifier ports.Notifier, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	l := &Ledger{store: store, notifier: notifier, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Recent reports whether recipient received kind within window before now.
func (l *Ledger) Recent(ctx context.Context, recipient id.UserID, kind models.NotificationKind, window time.Duration, now time.Time) (bool, error) {
	if window <= 0 {
		return false, nil
	}
	return l.store.ExistsLogEntry(ctx, recipient, kind, now.Add(-window))
}

// Record appends a log entry.
func (l *Ledger) Record(ctx context.Context, entry models.NotificationLogEntry) error {
	return l.store.AppendNotificationLog(ctx, entry)
}

// Deliver checks the window, notifies, then records. Nothing is recorded when
// the notifier fails. Concurrent deliveries for the same recipient and kind
// are serialized so one sweep cannot double-send.
func (l *Ledger) Deliver(ctx context.Context, d Delivery, now time.Time) (Outcome, error) {
	window := d.Kind.Window()
	if window > 0 {
		mu := l.stripe(d.Recipient, d.Kind)
		mu.Lock()
		defer mu.Unlock()

		recent, err := l.Recent(ctx, d.Recipient, d.Kind, window, now)
		if err != nil {
			l.observe(d.Kind, "error")
			return "", fmt.Errorf("check notification log: %w", err)
		}
		if recent {
			l.observe(d.Kind, string(OutcomeSkipped))
			l.logger.DebugContext(ctx, "notification suppressed by dedup window",
				"recipient", d.Recipient.String(),
				"kind", string(d.Kind),
				"subject", d.Subject,
			)
			return OutcomeSkipped, nil
		}
	}

	if err := l.notifier.Send(ctx, d.Recipient, d.Kind, d.Payload); err != nil {
		l.observe(d.Kind, "failed")
		return "", fmt.Errorf("send %s: %w", d.Kind, err)
	}

	entry := models.NotificationLogEntry{
		Recipient: d.Recipient,
		Kind:      d.Kind,
		SentAt:    now,
		Subject:   d.Subject,
	}
	if err := l.Record(ctx, entry); err != nil {
		// The notification went out; a missing entry means a possible repeat
		// on the next sweep, never a lost notice.
		l.logger.ErrorContext(ctx, "notification sent but not recorded",
			"recipient", d.Recipient.String(),
			"kind", string(d.Kind),
			"error", err,
		)
		l.observe(d.Kind, string(OutcomeSent))
		return OutcomeSent, fmt.Errorf("record notification: %w", err)
	}
	l.observe(d.Kind, string(OutcomeSent))
	return OutcomeSent, nil
}

func (l *Ledger) stripe(recipient id.UserID, kind models.NotificationKind) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write(recipient[:])
	_, _ = h.Write([]byte(kind))
	return &l.stripes[h.Sum32()%lockStripes]
}

func (l *Ledger) observe(kind models.NotificationKind, outcome string) {
	if l.metrics != nil {
		l.metrics.ObserveNotification(kind, outcome)
	}
}
