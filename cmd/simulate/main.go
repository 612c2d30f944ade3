package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/uhyunpark/tradesim/pkg/costmodel"
	"github.com/uhyunpark/tradesim/pkg/orderbook"
	"github.com/uhyunpark/tradesim/pkg/util"
)

type result struct {
	Spread   *orderbook.Spread        `json:"spread,omitempty"`
	MidPrice *float64                 `json:"midPrice,omitempty"`
	Book     orderbook.AggregatedBook `json:"orderbook"`
	Estimate costmodel.Estimate       `json:"estimate"`
}

func main() {
	bookPath := flag.String("book", "-", "snapshot JSON file ({bids, asks, timestamp}); - reads stdin")
	size := flag.Float64("size", 1, "order size in base units")
	vol := flag.Float64("vol", 50, "volatility, 0-100")
	tier := flag.String("tier", "standard", "fee tier: vip, standard, basic")
	side := flag.String("side", "buy", "order side: buy or sell")
	depth := flag.Int("depth", orderbook.DefaultMaxDepth, "levels per side to aggregate")
	impact := flag.String("impact", string(costmodel.ImpactClosedForm), "impact mode: closed_form or depth_walk")
	verbose := flag.Bool("v", false, "log model stages to stderr")
	flag.Parse()

	if err := run(os.Stdout, *bookPath, *size, *vol, *tier, *side, *depth, *impact, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, bookPath string, size, vol float64, tier, side string, depth int, impact string, verbose bool) error {
	if depth <= 0 {
		return fmt.Errorf("depth must be a positive integer, got %d", depth)
	}

	raw, err := readSnapshot(bookPath)
	if err != nil {
		return err
	}

	feeTier, err := costmodel.ParseFeeTier(tier)
	if err != nil {
		return err
	}
	orderSide, err := costmodel.ParseSide(side)
	if err != nil {
		return err
	}
	mode, err := costmodel.ParseImpactMode(impact)
	if err != nil {
		return err
	}

	model := costmodel.NewModel(mode)
	if verbose {
		// zap's production config writes to stderr, keeping stdout clean JSON
		logger, err := util.NewLogger("debug")
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		defer logger.Sync()
		model.Logger = logger.Sugar()
	}

	agg := orderbook.Aggregate(raw, depth)
	est, err := model.Estimate(costmodel.Params{
		OrderSize:  size,
		Volatility: vol,
		FeeTier:    feeTier,
		Side:       orderSide,
	}, &agg)
	if err != nil {
		return err
	}

	out := result{Book: agg, Estimate: est}
	if s := agg.Spread(); s.Available {
		out.Spread = &s
	}
	if mid, ok := agg.MidPrice(); ok {
		out.MidPrice = &mid
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func readSnapshot(path string) (orderbook.RawBook, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return orderbook.RawBook{}, fmt.Errorf("read snapshot: %w", err)
	}

	var raw orderbook.RawBook
	if err := json.Unmarshal(b, &raw); err != nil {
		return orderbook.RawBook{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return raw, nil
}
