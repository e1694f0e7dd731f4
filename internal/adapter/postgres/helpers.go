package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/decisiongate/decisiongate/internal/domain"
)

// storeErr classifies a pgx error for the domain's retry policy. Integrity
// violations (SQLSTATE 23xxx) are permanent caller errors; everything else
// that reaches here — connection loss, timeouts, failover — is transient
// and may be retried once by the caller.
func storeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransient)
}
