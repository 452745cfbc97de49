package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ddvo/chorelist/internal/chores"
	"github.com/ddvo/chorelist/internal/core/config"
)

// Pruner deletes bought items once they age past the retention period.
type Pruner struct {
	cfg config.RetentionConfig
	svc *chores.Service
}

// NewPruner creates a new Pruner worker.
func NewPruner(cfg config.RetentionConfig, svc *chores.Service) *Pruner {
	return &Pruner{cfg: cfg, svc: svc}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.Period <= 0 {
		return // Retention disabled
	}

	// Check at 10% of the retention period, clamped to [1m, 1h].
	interval := min(p.cfg.Period/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.Period)
	n, err := p.svc.PruneBought(ctx, cutoff)
	if err != nil {
		slog.Error("failed to prune bought items", "error", err)
		return
	}
	if n > 0 {
		slog.Info("pruned bought items", "count", n, "cutoff", cutoff)
	}
}
