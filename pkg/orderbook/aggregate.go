package orderbook

import "math"

// Aggregate truncates each side of raw to maxDepth levels and annotates every
// level with its running cumulative size and its share of the deepest side.
//
// Truncation happens before anything is summed, so totals and percentages
// describe only the visible window. maxDepth <= 0 yields empty sides; callers
// pick DefaultMaxDepth themselves. Levels are taken in the order received;
// callers pass bids best-first (descending) and asks best-first (ascending).
func Aggregate(raw RawBook, maxDepth int) AggregatedBook {
	bids := accumulate(raw.Bids, maxDepth)
	asks := accumulate(raw.Asks, maxDepth)

	maxCumulative := max(lastCumulative(bids), lastCumulative(asks), 0)
	scale(bids, maxCumulative)
	scale(asks, maxCumulative)

	return AggregatedBook{
		Bids:      bids,
		Asks:      asks,
		Timestamp: raw.Timestamp,
	}
}

// accumulate builds fresh depth entries for the first maxDepth levels.
func accumulate(levels []PriceLevel, maxDepth int) []DepthEntry {
	n := max(min(len(levels), maxDepth), 0)
	out := make([]DepthEntry, n)

	var cumulative float64
	for i := 0; i < n; i++ {
		lvl := levels[i].normalized()
		// Saturate instead of overflowing to +Inf
		cumulative = min(cumulative+lvl.Size, math.MaxFloat64)
		out[i] = DepthEntry{
			Price:          lvl.Price,
			Size:           lvl.Size,
			CumulativeSize: cumulative,
		}
	}
	return out
}

func lastCumulative(entries []DepthEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].CumulativeSize
}

func scale(entries []DepthEntry, maxCumulative float64) {
	if maxCumulative <= 0 {
		return // percentages stay 0
	}
	for i := range entries {
		entries[i].DepthPercent = 100 * (entries[i].CumulativeSize / maxCumulative)
	}
}

// BestBid returns the highest bid level in the aggregated window.
func (b AggregatedBook) BestBid() (DepthEntry, bool) {
	if len(b.Bids) == 0 {
		return DepthEntry{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level in the aggregated window.
func (b AggregatedBook) BestAsk() (DepthEntry, bool) {
	if len(b.Asks) == 0 {
		return DepthEntry{}, false
	}
	return b.Asks[0], true
}

// MidPrice returns the average of best bid and best ask.
// Returns false if the book is empty or one-sided.
func (b AggregatedBook) MidPrice() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// Spread reports best ask minus best bid. It is unavailable rather than zero
// when either side is empty.
func (b AggregatedBook) Spread() Spread {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return Spread{}
	}

	s := Spread{
		Absolute:  ask.Price - bid.Price,
		Available: true,
	}
	if bid.Price != 0 {
		s.Percent = 100 * s.Absolute / bid.Price
	}
	return s
}
