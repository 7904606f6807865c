package violations

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/logger"
)

// Janitor periodically deletes violation records older than the configured
// retention age. It runs off the request hot path; retention is an
// administrator concern, so the sweep interval is coarse.
type Janitor struct {
	store    *Store
	days     func() int // 0 disables automatic cleanup
	interval time.Duration
	logger   *logger.Logger
}

// NewJanitor creates a retention janitor. days is read on every sweep so a
// configuration reload takes effect without restarting the loop.
func NewJanitor(store *Store, days func() int, log *logger.Logger) *Janitor {
	return &Janitor{
		store:    store,
		days:     days,
		interval: 24 * time.Hour,
		logger:   log,
	}
}

// Run sweeps until the context is cancelled
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("Retention janitor started", zap.Duration("interval", j.interval))

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Retention janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	days := j.days()
	if days <= 0 {
		return
	}

	deleted, err := j.store.DeleteOlderThan(ctx, days)
	if err != nil {
		j.logger.Error("Retention sweep failed", zap.Error(err))
		return
	}

	if deleted > 0 {
		j.logger.Info("Retention sweep completed",
			zap.Int64("deleted", deleted),
			zap.Int("days", days))
	}
}
