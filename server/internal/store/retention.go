package store

import (
	"context"
	"log/slog"
	"time"
)

// RunRetention prunes rows older than retention every interval until ctx is
// cancelled. A zero retention disables pruning and returns immediately. When
// interval is zero it ticks at half the retention window, minimum one minute.
func RunRetention(ctx context.Context, st Store, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = retention / 2
		if interval < time.Minute {
			interval = time.Minute
		}
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := st.Prune(ctx, now.Add(-retention))
			if err != nil {
				slog.Error("store: prune failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("store: pruned old readings", "count", n, "retention", retention)
			}
		}
	}
}
