package worker

import (
	"context"
	"log/slog"
	"time"

	"shopcore/internal/service"
)

// Sweeper cancels orders that were never paid. A pending order whose
// payment intent was abandoned would otherwise sit forever; cancelling
// it keeps the order list honest without touching inventory, since
// inventory is only decremented at settlement.
type Sweeper struct {
	orders        *service.OrderService
	interval      time.Duration
	maxPendingAge time.Duration
}

func NewSweeper(orders *service.OrderService, interval, maxPendingAge time.Duration) *Sweeper {
	return &Sweeper{orders: orders, interval: interval, maxPendingAge: maxPendingAge}
}

func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("starting stale order sweeper", "interval", s.interval, "max_pending_age", s.maxPendingAge)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stale order sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.orders.CancelStalePending(ctx, s.maxPendingAge)
			if err != nil {
				slog.Error("stale order sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("cancelled stale pending orders", "count", n)
			}
		}
	}
}
