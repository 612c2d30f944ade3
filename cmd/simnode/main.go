package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/tradesim/params"
	"github.com/uhyunpark/tradesim/pkg/api"
	"github.com/uhyunpark/tradesim/pkg/book"
	"github.com/uhyunpark/tradesim/pkg/costmodel"
	"github.com/uhyunpark/tradesim/pkg/feed"
	"github.com/uhyunpark/tradesim/pkg/metrics"
	"github.com/uhyunpark/tradesim/pkg/util"
)

func main() {
	// Load config from .env, CONFIG_FILE and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	mode, err := costmodel.ParseImpactMode(cfg.Model.ImpactMode)
	if err != nil {
		sugar.Fatalw("invalid_impact_mode", "err", err)
	}
	model := costmodel.NewModel(mode)
	model.Logger = sugar

	m := metrics.New()
	live := book.New(cfg.Book.Symbol)

	// ---- API Server ----
	apiServer := api.NewServer(api.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxDepth:       cfg.Book.MaxDepth,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
	}, live, model, m, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("node_starting",
		"symbol", cfg.Book.Symbol,
		"max_depth", cfg.Book.MaxDepth,
		"impact_mode", mode,
		"feed_enabled", cfg.Feed.Enabled)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return apiServer.Start(ctx)
	})

	// ---- Snapshot Feed (optional) ----
	// Disable with ENABLE_FEED=false when a collector POSTs /api/v1/orderbook
	if cfg.Feed.Enabled {
		cancelFeed := feed.Start(ctx, live, feed.Config{
			Interval: cfg.Feed.Interval,
			Levels:   cfg.Feed.Levels,
			MidPrice: cfg.Feed.MidPrice,
			TickSize: cfg.Feed.TickSize,
			Seed:     cfg.Feed.Seed,
		}, sugar, apiServer.OnSnapshot)
		defer cancelFeed()
	} else {
		sugar.Info("feed_disabled - waiting for snapshots on /api/v1/orderbook")
	}

	// Progress logging loop
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				bid, _ := live.BestBid()
				ask, _ := live.BestAsk()
				bids, asks := live.Depth()
				sugar.Infow("book_progress",
					"best_bid", bid,
					"best_ask", ask,
					"bid_levels", bids,
					"ask_levels", asks)
			}
		}
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("node_failed", "err", err)
		os.Exit(1)
	}
	sugar.Info("node_stopped")
}
