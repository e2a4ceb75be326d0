package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
)

const processColumns = `id, candidate_id, candidate_user_id, competency_id, level, stage,
	evaluator_id, assigned_at, assignment_note, result, started_at, documents_completed_at,
	evaluated_at, ended_at, updated_at, quarantined, quarantine_reason, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcess(row rowScanner) (*models.Process, error) {
	var (
		p                                        models.Process
		pid, candidateID, candidateUserID        uuid.UUID
		evaluatorID                              uuid.NullUUID
		competencyID, stage                      string
		result                                   sql.NullString
		assignedAt, docsAt, evaluatedAt, endedAt sql.NullTime
	)
	err := row.Scan(&pid, &candidateID, &candidateUserID, &competencyID, &p.Level, &stage,
		&evaluatorID, &assignedAt, &p.AssignmentNote, &result, &p.StartedAt, &docsAt,
		&evaluatedAt, &endedAt, &p.UpdatedAt, &p.Quarantined, &p.QuarantineReason, &p.Version)
	if err != nil {
		return nil, err
	}
	p.ID = id.ProcessID(pid)
	p.CandidateID = id.CandidateID(candidateID)
	p.CandidateUserID = id.UserID(candidateUserID)
	p.CompetencyID = id.CompetencyID(competencyID)
	p.Stage = models.Stage(stage)
	if evaluatorID.Valid {
		ev := id.EvaluatorID(evaluatorID.UUID)
		p.EvaluatorID = &ev
	}
	if result.Valid {
		o := models.Outcome(result.String)
		p.Result = &o
	}
	p.StartedAt = p.StartedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	p.AssignedAt = timePtr(assignedAt)
	p.DocumentsCompletedAt = timePtr(docsAt)
	p.EvaluatedAt = timePtr(evaluatedAt)
	p.EndedAt = timePtr(endedAt)
	return &p, nil
}

func nullOutcome(o *models.Outcome) sql.NullString {
	if o == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*o), Valid: true}
}

// CreateProcess fails with ErrConflict when the candidate already has an
// open process; the partial unique index enforces it.
func (s *PostgresStore) CreateProcess(ctx context.Context, p *models.Process) error {
	query := `INSERT INTO processes (` + processColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1)`
	_, err := s.exec(ctx).ExecContext(ctx, query,
		uuid.UUID(p.ID), uuid.UUID(p.CandidateID), uuid.UUID(p.CandidateUserID), p.CompetencyID.String(),
		p.Level, string(p.Stage), nullUUID(p.EvaluatorID), nullTime(p.AssignedAt), p.AssignmentNote,
		nullOutcome(p.Result), p.StartedAt, nullTime(p.DocumentsCompletedAt), nullTime(p.EvaluatedAt),
		nullTime(p.EndedAt), p.UpdatedAt, p.Quarantined, p.QuarantineReason,
	)
	if err != nil {
		return translate(err, "create process")
	}
	p.Version = 1
	return nil
}

func (s *PostgresStore) GetProcess(ctx context.Context, processID id.ProcessID) (*models.Process, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `SELECT `+processColumns+` FROM processes WHERE id = $1`, uuid.UUID(processID))
	p, err := scanProcess(row)
	if err != nil {
		return nil, translate(err, "get process")
	}
	return p, nil
}

// SaveProcess writes p only if the stored row still has expectedStage and
// p.Version and is not quarantined.
func (s *PostgresStore) SaveProcess(ctx context.Context, p *models.Process, expectedStage models.Stage) error {
	query := `
		UPDATE processes SET
			stage = $3, evaluator_id = $4, assigned_at = $5, assignment_note = $6, result = $7,
			documents_completed_at = $8, evaluated_at = $9, ended_at = $10, updated_at = $11,
			version = version + 1
		WHERE id = $1 AND stage = $2 AND version = $12 AND NOT quarantined
	`
	res, err := s.exec(ctx).ExecContext(ctx, query,
		uuid.UUID(p.ID), string(expectedStage), string(p.Stage), nullUUID(p.EvaluatorID),
		nullTime(p.AssignedAt), p.AssignmentNote, nullOutcome(p.Result), nullTime(p.DocumentsCompletedAt),
		nullTime(p.EvaluatedAt), nullTime(p.EndedAt), p.UpdatedAt, p.Version,
	)
	if err != nil {
		return translate(err, "save process")
	}
	if err := requireOneRow(res, "save process"); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (s *PostgresStore) QuarantineProcess(ctx context.Context, processID id.ProcessID, reason string, at time.Time) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE processes
		SET quarantined = TRUE, quarantine_reason = $2, updated_at = $3, version = version + 1
		WHERE id = $1
	`, uuid.UUID(processID), reason, at)
	if err != nil {
		return translate(err, "quarantine process")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("quarantine process rows affected: %w", err)
	}
	if n == 0 {
		return translate(sql.ErrNoRows, "quarantine process")
	}
	return nil
}

// FindProcessesNeeding builds the WHERE clause from the query's set fields.
func (s *PostgresStore) FindProcessesNeeding(ctx context.Context, q models.ProcessQuery) ([]*models.Process, error) {
	conds := []string{"NOT quarantined"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Stage != "" {
		conds = append(conds, "stage = "+arg(string(q.Stage)))
	}
	if q.StartedBefore != nil {
		conds = append(conds, "started_at < "+arg(*q.StartedBefore))
	}
	if q.AssignedBefore != nil {
		conds = append(conds, "assigned_at < "+arg(*q.AssignedBefore))
	}
	if q.NotEvaluated {
		conds = append(conds, "evaluated_at IS NULL")
	}
	query := `SELECT ` + processColumns + ` FROM processes WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY started_at`
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "find processes")
	}
	defer rows.Close()

	var out []*models.Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindActiveProcess(ctx context.Context, candidateID id.CandidateID) (*models.Process, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `
		SELECT `+processColumns+` FROM processes
		WHERE candidate_id = $1 AND stage IN ('requested', 'under_evaluation', 'pending_review')
	`, uuid.UUID(candidateID))
	p, err := scanProcess(row)
	if err != nil {
		return nil, translate(err, "find active process")
	}
	return p, nil
}

func (s *PostgresStore) CountActiveAssignments(ctx context.Context, evaluatorID id.EvaluatorID) (int, error) {
	var n int
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM processes
		WHERE evaluator_id = $1 AND stage IN ('under_evaluation', 'pending_review')
	`, uuid.UUID(evaluatorID)).Scan(&n)
	if err != nil {
		return 0, translate(err, "count active assignments")
	}
	return n, nil
}
