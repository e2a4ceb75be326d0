package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
)

// -----------------------------------------------------------------------------
// Candidates
// -----------------------------------------------------------------------------

const candidateColumns = `id, user_id, competency_id, level, status, requested_at, updated_at`

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var (
		c                    models.Candidate
		cid, userID          uuid.UUID
		competencyID, status string
	)
	if err := row.Scan(&cid, &userID, &competencyID, &c.Level, &status, &c.RequestedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = id.CandidateID(cid)
	c.UserID = id.UserID(userID)
	c.CompetencyID = id.CompetencyID(competencyID)
	c.Status = models.CandidateStatus(status)
	c.RequestedAt = c.RequestedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, uuid.UUID(candidateID))
	c, err := scanCandidate(row)
	if err != nil {
		return nil, translate(err, "get candidate")
	}
	return c, nil
}

func (s *PostgresStore) FindCandidate(ctx context.Context, userID id.UserID, competencyID id.CompetencyID) (*models.Candidate, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE user_id = $1 AND competency_id = $2`,
		uuid.UUID(userID), competencyID.String())
	c, err := scanCandidate(row)
	if err != nil {
		return nil, translate(err, "find candidate")
	}
	return c, nil
}

// SaveCandidate upserts by id; a second candidate for the same user and
// competency violates the unique key and returns ErrConflict.
func (s *PostgresStore) SaveCandidate(ctx context.Context, c *models.Candidate) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO candidates (`+candidateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			level = EXCLUDED.level,
			status = EXCLUDED.status,
			requested_at = EXCLUDED.requested_at,
			updated_at = EXCLUDED.updated_at
	`, uuid.UUID(c.ID), uuid.UUID(c.UserID), c.CompetencyID.String(), c.Level, string(c.Status), c.RequestedAt, c.UpdatedAt)
	return translate(err, "save candidate")
}

// -----------------------------------------------------------------------------
// Evaluators
// -----------------------------------------------------------------------------

const evaluatorColumns = `id, user_id, name, active, capabilities, capacity, created_at`

func scanEvaluator(row rowScanner) (*models.Evaluator, error) {
	var (
		e           models.Evaluator
		eid, userID uuid.UUID
	)
	if err := row.Scan(&eid, &userID, &e.Name, &e.Active, pq.Array(&e.Capabilities), &e.Capacity, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ID = id.EvaluatorID(eid)
	e.UserID = id.UserID(userID)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (s *PostgresStore) GetEvaluator(ctx context.Context, evaluatorID id.EvaluatorID) (*models.Evaluator, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `SELECT `+evaluatorColumns+` FROM evaluators WHERE id = $1`, uuid.UUID(evaluatorID))
	e, err := scanEvaluator(row)
	if err != nil {
		return nil, translate(err, "get evaluator")
	}
	return e, nil
}

func (s *PostgresStore) FindEvaluatorByUser(ctx context.Context, userID id.UserID) (*models.Evaluator, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `SELECT `+evaluatorColumns+` FROM evaluators WHERE user_id = $1`, uuid.UUID(userID))
	e, err := scanEvaluator(row)
	if err != nil {
		return nil, translate(err, "find evaluator by user")
	}
	return e, nil
}

// LockEvaluator must run inside RunInTx; outside a transaction the lock is
// released as soon as the statement completes.
func (s *PostgresStore) LockEvaluator(ctx context.Context, evaluatorID id.EvaluatorID) (*models.Evaluator, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+evaluatorColumns+` FROM evaluators WHERE id = $1 FOR UPDATE`, uuid.UUID(evaluatorID))
	e, err := scanEvaluator(row)
	if err != nil {
		return nil, translate(err, "lock evaluator")
	}
	return e, nil
}

func (s *PostgresStore) SaveEvaluator(ctx context.Context, e *models.Evaluator) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO evaluators (`+evaluatorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			capabilities = EXCLUDED.capabilities,
			capacity = EXCLUDED.capacity
	`, uuid.UUID(e.ID), uuid.UUID(e.UserID), e.Name, e.Active, textArray(e.Capabilities), e.Capacity, e.CreatedAt)
	return translate(err, "save evaluator")
}

// ListActive matches the competency as a whole array element.
func (s *PostgresStore) ListActive(ctx context.Context, competencyID id.CompetencyID) ([]*models.Evaluator, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT `+evaluatorColumns+` FROM evaluators
		WHERE active AND capabilities @> ARRAY[$1]::TEXT[]
		ORDER BY name
	`, competencyID.String())
	if err != nil {
		return nil, translate(err, "list active evaluators")
	}
	defer rows.Close()

	var out []*models.Evaluator
	for rows.Next() {
		e, err := scanEvaluator(rows)
		if err != nil {
			return nil, translate(err, "scan evaluator")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Competencies
// -----------------------------------------------------------------------------

func (s *PostgresStore) GetCompetency(ctx context.Context, competencyID id.CompetencyID) (*models.Competency, error) {
	var (
		c                  models.Competency
		cid                string
		durSecs, validSecs int64
	)
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT id, name, required_kinds, duration_seconds, validity_seconds
		FROM competencies WHERE id = $1
	`, competencyID.String()).Scan(&cid, &c.Name, pq.Array(&c.RequiredKinds), &durSecs, &validSecs)
	if err != nil {
		return nil, translate(err, "get competency")
	}
	c.ID = id.CompetencyID(cid)
	c.Duration = duration(durSecs)
	c.ValidityPeriod = duration(validSecs)
	return &c, nil
}

func (s *PostgresStore) SaveCompetency(ctx context.Context, c *models.Competency) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO competencies (id, name, required_kinds, duration_seconds, validity_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			required_kinds = EXCLUDED.required_kinds,
			duration_seconds = EXCLUDED.duration_seconds,
			validity_seconds = EXCLUDED.validity_seconds
	`, c.ID.String(), c.Name, textArray(c.RequiredKinds), seconds(c.Duration), seconds(c.ValidityPeriod))
	return translate(err, "save competency")
}
