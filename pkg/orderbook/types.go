package orderbook

import (
	"bytes"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
)

// DefaultMaxDepth is the number of levels kept per side when no depth is given.
const DefaultMaxDepth = 10

// PriceLevel is one raw (price, size) level as received from a feed.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// UnmarshalJSON fills absent, null, or non-numeric fields with 0 instead of
// failing, so a sparse feed message never aborts aggregation.
// Numeric strings ("101.5") are accepted since most venues quote that way.
func (l *PriceLevel) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		// [price, size] tuples are the other common wire shape
		var tuple []json.RawMessage
		if terr := json.Unmarshal(b, &tuple); terr != nil {
			*l = PriceLevel{}
			return nil
		}
		var lvl PriceLevel
		if len(tuple) > 0 {
			lvl.Price = parseNumber(tuple[0])
		}
		if len(tuple) > 1 {
			lvl.Size = parseNumber(tuple[1])
		}
		*l = lvl.normalized()
		return nil
	}
	*l = PriceLevel{
		Price: parseNumber(raw["price"]),
		Size:  parseNumber(raw["size"]),
	}.normalized()
	return nil
}

func parseNumber(b json.RawMessage) float64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return 0
	}
	return f
}

// normalized clamps NaN, Inf and negative values to 0.
func (l PriceLevel) normalized() PriceLevel {
	return PriceLevel{Price: clean(l.Price), Size: clean(l.Size)}
}

func clean(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// RawBook is an L2 snapshot. Bids are expected best (highest) first and asks
// best (lowest) first; Aggregate does not re-sort.
type RawBook struct {
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// DepthEntry is a PriceLevel annotated with its running depth.
type DepthEntry struct {
	Price          float64 `json:"price"`
	Size           float64 `json:"size"`
	CumulativeSize float64 `json:"total"`      // sum of sizes at-or-better on this side
	DepthPercent   float64 `json:"percentage"` // 0..100, shared scale across both sides
}

// AggregatedBook is the depth-ranked view of one snapshot.
type AggregatedBook struct {
	Bids      []DepthEntry `json:"bids"` // Sorted high to low
	Asks      []DepthEntry `json:"asks"` // Sorted low to high
	Timestamp int64        `json:"timestamp"`
}

// Spread between the best ask and the best bid of an aggregated book.
// Available is false when either side is empty; Absolute and Percent are
// then meaningless and left at 0.
type Spread struct {
	Absolute  float64 `json:"absolute"`
	Percent   float64 `json:"percent"`
	Available bool    `json:"available"`
}
