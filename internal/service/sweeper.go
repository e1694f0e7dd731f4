package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/decisiongate/decisiongate/internal/adapter/otel"
	"github.com/decisiongate/decisiongate/internal/adapter/ws"
	"github.com/decisiongate/decisiongate/internal/config"
	"github.com/decisiongate/decisiongate/internal/domain/decision"
	"github.com/decisiongate/decisiongate/internal/domain/history"
	"github.com/decisiongate/decisiongate/internal/port/database"
)

// Sweeper runs two background loops: the expiry sweep that reaps pending
// decisions past their TTL, and the retention purge that trims the audit
// trail. Both stop when the context is cancelled.
type Sweeper struct {
	store   database.Store
	hub     Broadcaster
	metrics *otel.Metrics
	cfg     config.Routing
	logger  *slog.Logger
}

// NewSweeper creates the background sweeper. hub and metrics may be nil.
func NewSweeper(store database.Store, hub Broadcaster, metrics *otel.Metrics, cfg config.Routing, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, hub: hub, metrics: metrics, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled, driving both loops.
func (s *Sweeper) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.SweepExpired(ctx)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.PurgeHistory(ctx)
			}
		}
	})

	return g.Wait()
}

// SweepExpired transitions every pending decision past its TTL to
// expired. Each transition goes through the compare-and-set, so a human
// verdict that lands first simply wins and the sweep moves on.
func (s *Sweeper) SweepExpired(ctx context.Context) int {
	now := time.Now().UTC()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	expired, err := s.store.ListExpiredPending(ctx, now)
	if err != nil {
		s.logger.Error("list expired pending failed", "error", err)
		return 0
	}

	swept := 0
	for i := range expired {
		d := &expired[i]
		won, err := s.store.CompareAndSetStatus(ctx, d.ID, decision.StatusPendingApproval, decision.StatusExpired, now, "")
		if err != nil {
			s.logger.Error("expire decision failed", "decision_id", d.ID, "error", err)
			continue
		}
		if !won {
			continue
		}
		swept++

		d.Status = decision.StatusExpired
		d.DecidedAt = &now
		s.appendHistory(ctx, d, now)
		s.metrics.RecordResolution(ctx, string(decision.StatusExpired))

		if s.hub != nil {
			s.hub.BroadcastEvent(ctx, ws.EventDecisionResolved, ws.DecisionResolvedEvent{
				DecisionID: d.ID,
				WorkflowID: d.WorkflowID,
				Status:     string(decision.StatusExpired),
			})
		}
	}

	if swept > 0 {
		s.logger.Info("expired pending decisions", "count", swept)
	}
	return swept
}

// PurgeHistory removes audit entries older than the retention window.
func (s *Sweeper) PurgeHistory(ctx context.Context) int64 {
	cutoff := time.Now().UTC().Add(-s.cfg.HistoryRetention)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	purged, err := s.store.PurgeHistoryBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("purge history failed", "error", err)
		return 0
	}
	if purged > 0 {
		s.logger.Info("purged history entries", "count", purged, "cutoff", cutoff)
	}
	return purged
}

func (s *Sweeper) appendHistory(ctx context.Context, d *decision.Decision, decidedAt time.Time) {
	entry := &history.Entry{
		DecisionID:  d.ID,
		WorkflowID:  d.WorkflowID,
		Confidence:  d.Confidence,
		Outcome:     string(decision.StatusExpired),
		SubmittedAt: d.CreatedAt,
		DecidedAt:   decidedAt,
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		s.logger.Error("append history failed", "decision_id", d.ID, "error", err)
	}
}
