package costmodel

import (
	"math"

	"github.com/uhyunpark/tradesim/pkg/orderbook"
)

// DepthWalkImpact fills orderSize against the visible levels of book
// (asks for a buy, bids for a sell) and returns orderSize times the relative
// distance of the volume-weighted fill price from mid.
//
// Size beyond the visible depth is assumed to fill at the worst visible price
// and is additionally charged the closed-form impact for that remainder.
// ok is false when the book has no mid price or the walked side has no size,
// in which case the caller should keep the closed-form estimate.
func DepthWalkImpact(book orderbook.AggregatedBook, side Side, orderSize, volatility float64) (impact float64, ok bool) {
	mid, ok := book.MidPrice()
	if !ok || mid <= 0 || orderSize <= 0 {
		return 0, false
	}

	levels := book.Asks
	if side == Sell {
		levels = book.Bids
	}

	var notional, filled, worst float64
	for _, lvl := range levels {
		if filled >= orderSize {
			break
		}
		if lvl.Size <= 0 {
			continue
		}
		use := min(orderSize-filled, lvl.Size)
		notional += use * lvl.Price
		filled += use
		worst = lvl.Price
	}
	if filled == 0 {
		return 0, false
	}

	remainder := orderSize - filled
	if remainder > 0 {
		notional += remainder * worst
	}

	vwap := notional / orderSize
	impact = orderSize * math.Abs(vwap-mid) / mid
	if remainder > 0 {
		impact += ClosedFormImpact(remainder, volatility)
	}
	return impact, true
}
