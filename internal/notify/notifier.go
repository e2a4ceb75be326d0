// Package notify holds the notifier adapters: an HTTP webhook for
// production, a structured-log notifier for development, an in-memory
// notifier for tests, and Fanout to combine them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
)

// Notifier matches the engine's notifier port.
type Notifier interface {
	Send(ctx context.Context, recipient id.UserID, kind models.NotificationKind, payload models.Payload) error
}

// LogNotifier writes each notification as a structured log line.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, recipient id.UserID, kind models.NotificationKind, payload models.Payload) error {
	n.logger.InfoContext(ctx, "notification",
		"recipient", recipient.String(),
		"kind", string(kind),
		"process_id", payload.ProcessID,
		"certificate_id", payload.CertificateID,
	)
	return nil
}

// Fanout sends through every notifier in order. All notifiers are tried;
// the joined error reports each one that failed.
type Fanout struct {
	notifiers []Notifier
}

func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

func (f *Fanout) Send(ctx context.Context, recipient id.UserID, kind models.NotificationKind, payload models.Payload) error {
	var errs []error
	for i, n := range f.notifiers {
		if err := n.Send(ctx, recipient, kind, payload); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
