package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
)

// -----------------------------------------------------------------------------
// Documents
// -----------------------------------------------------------------------------

// SubmitDocument replaces any earlier upload of the same kind.
func (s *PostgresStore) SubmitDocument(ctx context.Context, doc *models.Document) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO documents (candidate_id, kind, status, uploaded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (candidate_id, kind) DO UPDATE SET
			status = EXCLUDED.status,
			uploaded_at = EXCLUDED.uploaded_at
	`, uuid.UUID(doc.CandidateID), doc.Kind, string(doc.Status), doc.UploadedAt)
	return translate(err, "submit document")
}

// IsComplete counts the required kinds that have a non-rejected document.
func (s *PostgresStore) IsComplete(ctx context.Context, candidateID id.CandidateID, requiredKinds []string) (bool, error) {
	if len(requiredKinds) == 0 {
		return true, nil
	}
	var present int
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT kind) FROM documents
		WHERE candidate_id = $1 AND kind = ANY($2) AND status <> $3
	`, uuid.UUID(candidateID), pq.Array(requiredKinds), string(models.DocumentStatusRejected)).Scan(&present)
	if err != nil {
		return false, translate(err, "check documents")
	}
	return present == len(requiredKinds), nil
}

// -----------------------------------------------------------------------------
// Authorization
// -----------------------------------------------------------------------------

func (s *PostgresStore) GrantCapability(ctx context.Context, userID id.UserID, capability string) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO principal_capabilities (user_id, capability) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, uuid.UUID(userID), capability)
	return translate(err, "grant capability")
}

func (s *PostgresStore) HasCapability(ctx context.Context, userID id.UserID, capability string) (bool, error) {
	var ok bool
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM principal_capabilities WHERE user_id = $1 AND capability = $2)
	`, uuid.UUID(userID), capability).Scan(&ok)
	if err != nil {
		return false, translate(err, "has capability")
	}
	return ok, nil
}

func (s *PostgresStore) ListPrincipalsWithCapability(ctx context.Context, capability string) ([]id.UserID, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT user_id FROM principal_capabilities WHERE capability = $1 ORDER BY user_id
	`, capability)
	if err != nil {
		return nil, translate(err, "list principals")
	}
	defer rows.Close()

	var out []id.UserID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		out = append(out, id.UserID(u))
	}
	return out, rows.Err()
}
