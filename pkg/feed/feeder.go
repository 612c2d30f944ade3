package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradesim/pkg/book"
	"github.com/uhyunpark/tradesim/pkg/orderbook"
)

// Config controls the synthetic snapshot feed.
type Config struct {
	Interval time.Duration // how often a snapshot is published
	Levels   int           // levels per side
	MidPrice float64       // starting mid price
	TickSize float64
	Seed     int64
}

// DefaultConfig returns a BTC-USDT-like book updated every 100ms.
func DefaultConfig() Config {
	return Config{
		Interval: 100 * time.Millisecond,
		Levels:   20,
		MidPrice: 65000,
		TickSize: 0.1,
		Seed:     1,
	}
}

// Start runs a background goroutine that replaces the live book with a new
// snapshot on every tick and then calls onSnapshot, if set.
// Returns a cancel function to stop the feeder.
func Start(ctx context.Context, live *book.Book, cfg Config, logger *zap.SugaredLogger, onSnapshot func(orderbook.RawBook)) context.CancelFunc {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	gen := NewSnapshotGenerator(cfg.MidPrice, cfg.TickSize, cfg.Levels, cfg.Seed)
	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		startTime := time.Now()
		published := 0

		logger.Infow("feed_started",
			"symbol", live.Symbol(),
			"interval_ms", cfg.Interval.Milliseconds(),
			"levels", cfg.Levels)

		for {
			select {
			case <-feedCtx.Done():
				logger.Infow("feed_stopped",
					"snapshots", published,
					"elapsed", time.Since(startTime).Round(time.Second).String())
				return

			case now := <-ticker.C:
				snap := gen.Next(now.UnixMilli())
				live.Replace(snap)
				published++
				if onSnapshot != nil {
					onSnapshot(snap)
				}
			}
		}
	}()

	return cancel
}
