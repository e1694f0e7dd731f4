package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/decisiongate/decisiongate/internal/domain"
	"github.com/decisiongate/decisiongate/internal/domain/decision"
)

const decisionColumns = `id, workflow_id, confidence, status, payload, feedback, result, created_at, expires_at, decided_at`

func scanDecision(row pgx.Row) (decision.Decision, error) {
	var d decision.Decision
	err := row.Scan(
		&d.ID, &d.WorkflowID, &d.Confidence, &d.Status, &d.Payload,
		&d.Feedback, &d.Result, &d.CreatedAt, &d.ExpiresAt, &d.DecidedAt,
	)
	return d, err
}

func (s *Store) CreateDecision(ctx context.Context, d *decision.Decision) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO decisions (id, workflow_id, confidence, status, payload, feedback, result, created_at, expires_at, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.WorkflowID, d.Confidence, d.Status, d.Payload,
		d.Feedback, d.Result, d.CreatedAt, d.ExpiresAt, d.DecidedAt)
	if err != nil {
		return storeErr("create decision", err)
	}
	return nil
}

func (s *Store) GetDecision(ctx context.Context, id string) (*decision.Decision, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE id = $1`, id)

	d, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get decision %s: %w", id, domain.ErrNotFound)
		}
		return nil, storeErr(fmt.Sprintf("get decision %s", id), err)
	}
	return &d, nil
}

func (s *Store) ListPendingDecisions(ctx context.Context, now time.Time) ([]decision.Decision, error) {
	return s.listDecisions(ctx,
		`SELECT `+decisionColumns+` FROM decisions
		 WHERE status = $1 AND expires_at > $2
		 ORDER BY created_at ASC`,
		decision.StatusPendingApproval, now)
}

func (s *Store) ListExpiredPending(ctx context.Context, now time.Time) ([]decision.Decision, error) {
	return s.listDecisions(ctx,
		`SELECT `+decisionColumns+` FROM decisions
		 WHERE status = $1 AND expires_at <= $2
		 ORDER BY created_at ASC`,
		decision.StatusPendingApproval, now)
}

func (s *Store) listDecisions(ctx context.Context, query string, args ...any) ([]decision.Decision, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list decisions", err)
	}
	defer rows.Close()

	var decisions []decision.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, storeErr("scan decision", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// CompareAndSetStatus performs the conditional UPDATE that guarantees
// exactly one winner: the row is only touched while its status still
// equals expected, so concurrent approve/reject/expiry calls race safely.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, expected, next decision.Status, decidedAt time.Time, feedback string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE decisions
		 SET status = $3, decided_at = $4,
		     feedback = CASE WHEN $5 <> '' THEN $5 ELSE feedback END
		 WHERE id = $1 AND status = $2`,
		id, expected, next, decidedAt, feedback)
	if err != nil {
		return false, storeErr(fmt.Sprintf("cas decision %s", id), err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Lost the race, or the id is unknown. Distinguish the two.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM decisions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, storeErr(fmt.Sprintf("cas decision %s", id), err)
	}
	if !exists {
		return false, fmt.Errorf("cas decision %s: %w", id, domain.ErrNotFound)
	}
	return false, nil
}

func (s *Store) SetDecisionResult(ctx context.Context, id string, result []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE decisions SET result = $2 WHERE id = $1`, id, result)
	if err != nil {
		return storeErr(fmt.Sprintf("set decision result %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set decision result %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
