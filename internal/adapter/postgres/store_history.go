package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/decisiongate/decisiongate/internal/domain/history"
)

func (s *Store) AppendHistory(ctx context.Context, e *history.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	const q = `
		INSERT INTO decision_history (id, decision_id, workflow_id, confidence, outcome, feedback, submitted_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, q,
		e.ID, e.DecisionID, e.WorkflowID, e.Confidence,
		e.Outcome, e.Feedback, e.SubmittedAt, e.DecidedAt,
	).Scan(&e.CreatedAt)
	if err != nil {
		return storeErr("append history", err)
	}
	return nil
}

func (s *Store) QueryHistory(ctx context.Context, q history.Query) ([]history.Entry, error) {
	query := `
		SELECT id, decision_id, workflow_id, confidence, outcome, feedback, submitted_at, decided_at, created_at
		FROM decision_history
		WHERE ($1 = '' OR workflow_id = $1)
		  AND ($2 = '' OR outcome = $2)
		ORDER BY created_at DESC`
	args := []any{q.WorkflowID, q.Outcome}
	if q.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query history", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var e history.Entry
		if err := rows.Scan(
			&e.ID, &e.DecisionID, &e.WorkflowID, &e.Confidence,
			&e.Outcome, &e.Feedback, &e.SubmittedAt, &e.DecidedAt, &e.CreatedAt,
		); err != nil {
			return nil, storeErr("scan history entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) PurgeHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM decision_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, storeErr("purge history", err)
	}
	return tag.RowsAffected(), nil
}
