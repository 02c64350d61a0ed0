package ingest

import (
	"context"
	"log/slog"
	"time"

	"txguard/internal/metrics"
	"txguard/internal/normalize"
)

// SendNonBlocking queues f for evaluation. When the channel is full the
// transaction is dropped and counted.
func SendNonBlocking(ctx context.Context, out chan<- *normalize.Fields, f *normalize.Fields, logger *slog.Logger) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	default:
		metrics.IngestDroppedTotal.WithLabelValues(f.Source).Inc()
		if logger != nil {
			id, _ := f.Value("id")
			logger.Warn("transaction channel full, dropping transaction", "source", f.Source, "tx_id", id)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
