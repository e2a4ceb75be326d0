package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
)

// -----------------------------------------------------------------------------
// Evaluations
// -----------------------------------------------------------------------------

func (s *PostgresStore) AppendEvaluation(ctx context.Context, e *models.Evaluation) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO evaluations (id, process_id, evaluator_id, outcome, note, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(e.ID), uuid.UUID(e.ProcessID), uuid.UUID(e.EvaluatorID), string(e.Outcome), e.Note, e.SubmittedAt)
	return translate(err, "append evaluation")
}

func (s *PostgresStore) ListEvaluations(ctx context.Context, processID id.ProcessID) ([]*models.Evaluation, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT id, process_id, evaluator_id, outcome, note, submitted_at
		FROM evaluations WHERE process_id = $1
		ORDER BY submitted_at
	`, uuid.UUID(processID))
	if err != nil {
		return nil, translate(err, "list evaluations")
	}
	defer rows.Close()

	var out []*models.Evaluation
	for rows.Next() {
		var (
			e                   models.Evaluation
			eid, pid, evaluator uuid.UUID
			outcome             string
		)
		if err := rows.Scan(&eid, &pid, &evaluator, &outcome, &e.Note, &e.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		e.ID = id.EvaluationID(eid)
		e.ProcessID = id.ProcessID(pid)
		e.EvaluatorID = id.EvaluatorID(evaluator)
		e.Outcome = models.Outcome(outcome)
		e.SubmittedAt = e.SubmittedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Certificates
// -----------------------------------------------------------------------------

const certificateColumns = `id, process_id, candidate_id, holder_user_id, competency_id, level,
	status, issued_at, expires_at, expired_at, version`

func scanCertificate(row rowScanner) (*models.Certificate, error) {
	var (
		c                               models.Certificate
		cid, pid, candidateID, holderID uuid.UUID
		competencyID, status            string
		expiresAt, expiredAt            sql.NullTime
	)
	err := row.Scan(&cid, &pid, &candidateID, &holderID, &competencyID, &c.Level,
		&status, &c.IssuedAt, &expiresAt, &expiredAt, &c.Version)
	if err != nil {
		return nil, err
	}
	c.ID = id.CertificateID(cid)
	c.ProcessID = id.ProcessID(pid)
	c.CandidateID = id.CandidateID(candidateID)
	c.HolderUserID = id.UserID(holderID)
	c.CompetencyID = id.CompetencyID(competencyID)
	c.Status = models.CertificateStatus(status)
	c.IssuedAt = c.IssuedAt.UTC()
	c.ExpiresAt = timePtr(expiresAt)
	c.ExpiredAt = timePtr(expiredAt)
	return &c, nil
}

// CreateCertificate returns ErrConflict when the process already has one.
func (s *PostgresStore) CreateCertificate(ctx context.Context, c *models.Certificate) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO certificates (`+certificateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
	`, uuid.UUID(c.ID), uuid.UUID(c.ProcessID), uuid.UUID(c.CandidateID), uuid.UUID(c.HolderUserID),
		c.CompetencyID.String(), c.Level, string(c.Status), c.IssuedAt, nullTime(c.ExpiresAt), nullTime(c.ExpiredAt))
	if err != nil {
		return translate(err, "create certificate")
	}
	c.Version = 1
	return nil
}

func (s *PostgresStore) GetCertificate(ctx context.Context, certificateID id.CertificateID) (*models.Certificate, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, uuid.UUID(certificateID))
	c, err := scanCertificate(row)
	if err != nil {
		return nil, translate(err, "get certificate")
	}
	return c, nil
}

func (s *PostgresStore) FindCertificateByProcess(ctx context.Context, processID id.ProcessID) (*models.Certificate, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE process_id = $1`, uuid.UUID(processID))
	c, err := scanCertificate(row)
	if err != nil {
		return nil, translate(err, "find certificate by process")
	}
	return c, nil
}

// SaveCertificate is conditional on the stored status and version.
func (s *PostgresStore) SaveCertificate(ctx context.Context, c *models.Certificate, expectedStatus models.CertificateStatus) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE certificates
		SET status = $3, expires_at = $4, expired_at = $5, version = version + 1
		WHERE id = $1 AND status = $2 AND version = $6
	`, uuid.UUID(c.ID), string(expectedStatus), string(c.Status), nullTime(c.ExpiresAt), nullTime(c.ExpiredAt), c.Version)
	if err != nil {
		return translate(err, "save certificate")
	}
	if err := requireOneRow(res, "save certificate"); err != nil {
		return err
	}
	c.Version++
	return nil
}

func (s *PostgresStore) FindCertificates(ctx context.Context, q models.CertificateQuery) ([]*models.Certificate, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Status != "" {
		conds = append(conds, "status = "+arg(string(q.Status)))
	}
	if q.HolderUserID != nil {
		conds = append(conds, "holder_user_id = "+arg(uuid.UUID(*q.HolderUserID)))
	}
	if q.ExpiresBefore != nil {
		conds = append(conds, "expires_at < "+arg(*q.ExpiresBefore))
	}
	if q.ExpiresFrom != nil {
		conds = append(conds, "expires_at >= "+arg(*q.ExpiresFrom))
	}
	if q.ExpiresTo != nil {
		conds = append(conds, "expires_at <= "+arg(*q.ExpiresTo))
	}
	query := `SELECT ` + certificateColumns + ` FROM certificates`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY issued_at`
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "find certificates")
	}
	defer rows.Close()

	var out []*models.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
