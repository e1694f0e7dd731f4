package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decisiongate/decisiongate/internal/domain"
	"github.com/decisiongate/decisiongate/internal/domain/workflow"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Workflows ---

const workflowColumns = `id, hitl_enabled, confidence_threshold, autonomy_level, target_collaborator, description, created_at, updated_at`

func scanWorkflow(row pgx.Row) (workflow.Config, error) {
	var cfg workflow.Config
	err := row.Scan(
		&cfg.ID, &cfg.HITLEnabled, &cfg.ConfidenceThreshold, &cfg.AutonomyLevel,
		&cfg.TargetCollaborator, &cfg.Description, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	return cfg, err
}

func (s *Store) ListWorkflows(ctx context.Context) ([]workflow.Config, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+workflowColumns+` FROM workflows ORDER BY id ASC`)
	if err != nil {
		return nil, storeErr("list workflows", err)
	}
	defer rows.Close()

	var configs []workflow.Config
	for rows.Next() {
		cfg, err := scanWorkflow(rows)
		if err != nil {
			return nil, storeErr("scan workflow", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Config, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)

	cfg, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get workflow %s: %w", id, domain.ErrNotFound)
		}
		return nil, storeErr(fmt.Sprintf("get workflow %s", id), err)
	}
	return &cfg, nil
}

func (s *Store) CreateWorkflow(ctx context.Context, req workflow.CreateRequest) (*workflow.Config, error) {
	level := req.AutonomyLevel
	if level == "" {
		level = workflow.LevelSupervised
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO workflows (id, hitl_enabled, confidence_threshold, autonomy_level, target_collaborator, description)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+workflowColumns,
		req.ID, req.HITLEnabled, req.ConfidenceThreshold, level, req.TargetCollaborator, req.Description)

	cfg, err := scanWorkflow(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("workflow %s already exists: %w", req.ID, domain.ErrConflict)
		}
		return nil, storeErr("create workflow", err)
	}
	return &cfg, nil
}

func (s *Store) UpdateWorkflow(ctx context.Context, cfg *workflow.Config) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflows
		 SET hitl_enabled = $2, confidence_threshold = $3, autonomy_level = $4,
		     target_collaborator = $5, description = $6, updated_at = now()
		 WHERE id = $1`,
		cfg.ID, cfg.HITLEnabled, cfg.ConfidenceThreshold, cfg.AutonomyLevel,
		cfg.TargetCollaborator, cfg.Description)
	if err != nil {
		return storeErr(fmt.Sprintf("update workflow %s", cfg.ID), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update workflow %s: %w", cfg.ID, domain.ErrNotFound)
	}
	return nil
}
