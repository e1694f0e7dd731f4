package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/decisiongate/decisiongate/internal/domain"
	"github.com/decisiongate/decisiongate/internal/domain/history"
	"github.com/decisiongate/decisiongate/internal/port/database"
	"github.com/decisiongate/decisiongate/internal/resilience"
)

// historyMaxLimit caps a single history page.
const historyMaxLimit = 500

// History serves the bounded audit trail of terminal decisions.
type History struct {
	store        database.Store
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewHistory creates the history query service.
func NewHistory(store database.Store, storeTimeout time.Duration, logger *slog.Logger) *History {
	return &History{store: store, storeTimeout: storeTimeout, logger: logger}
}

// Query lists audit entries newest first, optionally filtered by workflow
// and outcome. A zero limit returns everything still inside retention.
func (h *History) Query(ctx context.Context, q history.Query) ([]history.Entry, error) {
	if q.Limit < 0 {
		return nil, fmt.Errorf("limit %d must be non-negative: %w", q.Limit, domain.ErrValidation)
	}
	if q.Limit > historyMaxLimit {
		q.Limit = historyMaxLimit
	}

	var entries []history.Entry
	err := resilience.RetryTransient(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
		defer cancel()
		var err error
		entries, err = h.store.QueryHistory(ctx, q)
		return err
	})
	return entries, err
}
