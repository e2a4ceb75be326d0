package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"

	id "certflow/pkg/domain"
	audit "certflow/pkg/platform/audit"
	txcontext "certflow/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Store implements audit.Store on the audit_events table. Appends join the
// transaction carried by ctx, so an event commits with the change it records.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// Append writes event. Replaying an event with the same ID is a no-op.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	// category always follows the action table
	category := audit.AuditEvent(event.Action).Category()

	var userID *uuid.UUID
	if !event.UserID.IsNil() {
		uid := uuid.UUID(event.UserID)
		userID = &uid
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action, subject, user_id, actor_id,
			process_id, certificate_id, reason, request_id, sweep_id, severity
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		eventID,
		string(category),
		event.Timestamp,
		event.Action,
		event.Subject,
		userID,
		event.ActorID,
		event.ProcessID,
		event.CertificateID,
		event.Reason,
		event.RequestID,
		event.SweepID,
		string(event.Severity),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns events affecting userID, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+` WHERE user_id = $1 ORDER BY timestamp, id`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByCategory returns the most recent events of one category, newest first.
func (s *Store) ListByCategory(ctx context.Context, category audit.EventCategory, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEvents+` WHERE category = $1 ORDER BY timestamp DESC, id LIMIT $2`, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

const selectEvents = `
	SELECT id, category, timestamp, action, subject, user_id, actor_id,
		process_id, certificate_id, reason, request_id, sweep_id, severity
	FROM audit_events`

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			category string
			severity string
			userID   *uuid.UUID
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&event.Action,
			&event.Subject,
			&userID,
			&event.ActorID,
			&event.ProcessID,
			&event.CertificateID,
			&event.Reason,
			&event.RequestID,
			&event.SweepID,
			&severity,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Severity = audit.Severity(severity)
		if userID != nil {
			event.UserID = id.UserID(*userID)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
