package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
)

func (s *PostgresStore) AppendNotificationLog(ctx context.Context, entry models.NotificationLogEntry) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO notification_log (recipient, kind, sent_at, subject)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(entry.Recipient), string(entry.Kind), entry.SentAt, entry.Subject)
	return translate(err, "append notification log")
}

// ExistsLogEntry is served by idx_notification_log_lookup.
func (s *PostgresStore) ExistsLogEntry(ctx context.Context, recipient id.UserID, kind models.NotificationKind, after time.Time) (bool, error) {
	var exists bool
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notification_log
			WHERE recipient = $1 AND kind = $2 AND sent_at > $3
		)
	`, uuid.UUID(recipient), string(kind), after).Scan(&exists)
	if err != nil {
		return false, translate(err, "exists log entry")
	}
	return exists, nil
}
