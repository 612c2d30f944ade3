package feed

import (
	"math"
	"math/rand"

	"github.com/uhyunpark/tradesim/pkg/orderbook"
)

// SnapshotGenerator produces random-walk L2 snapshots around a mid price.
// Not safe for concurrent use; the feeder owns one per goroutine.
type SnapshotGenerator struct {
	mid      float64
	tickSize float64
	levels   int
	rng      *rand.Rand
}

func NewSnapshotGenerator(midPrice, tickSize float64, levels int, seed int64) *SnapshotGenerator {
	if tickSize <= 0 {
		tickSize = 0.1
	}
	if levels <= 0 {
		levels = 20
	}
	if midPrice <= tickSize {
		midPrice = 1000 * tickSize
	}
	return &SnapshotGenerator{
		mid:      midPrice,
		tickSize: tickSize,
		levels:   levels,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (g *SnapshotGenerator) Mid() float64 { return g.mid }

// Next moves the mid by up to ±2 ticks and lays out a fresh book around it.
// Bids come back best first (descending), asks best first (ascending).
func (g *SnapshotGenerator) Next(ts int64) orderbook.RawBook {
	g.mid += float64(g.rng.Intn(5)-2) * g.tickSize
	if g.mid < 2*g.tickSize {
		g.mid = 2 * g.tickSize
	}

	// Best bid sits on the tick at or below mid, best ask one tick above it
	bestBid := math.Floor(g.mid/g.tickSize) * g.tickSize
	bestAsk := bestBid + g.tickSize

	raw := orderbook.RawBook{
		Bids:      make([]orderbook.PriceLevel, 0, g.levels),
		Asks:      make([]orderbook.PriceLevel, 0, g.levels),
		Timestamp: ts,
	}
	for i := 0; i < g.levels; i++ {
		step := float64(i) * g.tickSize
		if bid := round(bestBid-step, g.tickSize); bid > 0 {
			raw.Bids = append(raw.Bids, orderbook.PriceLevel{Price: bid, Size: g.size(i)})
		}
		raw.Asks = append(raw.Asks, orderbook.PriceLevel{Price: round(bestAsk+step, g.tickSize), Size: g.size(i)})
	}
	return raw
}

// size grows with distance from the touch, like most real books.
func (g *SnapshotGenerator) size(level int) float64 {
	base := 0.5 + float64(level)*0.25
	return math.Round((base+g.rng.Float64()*base)*1000) / 1000
}

// round snaps p to the tick grid to avoid float drift in level prices.
func round(p, tick float64) float64 {
	return math.Round(p/tick) * tick
}
