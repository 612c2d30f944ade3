package api

import (
	"github.com/uhyunpark/tradesim/pkg/costmodel"
	"github.com/uhyunpark/tradesim/pkg/orderbook"
)

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// OrderbookData is a raw L2 snapshot posted by a client or collector.
// Levels missing price or size decode as 0.
type OrderbookData struct {
	Bids      []orderbook.PriceLevel `json:"bids" validate:"min=1"` // Sorted high to low
	Asks      []orderbook.PriceLevel `json:"asks" validate:"min=1"` // Sorted low to high
	Timestamp int64                  `json:"timestamp"`             // Unix milliseconds
}

func (d OrderbookData) Raw() orderbook.RawBook {
	return orderbook.RawBook{Bids: d.Bids, Asks: d.Asks, Timestamp: d.Timestamp}
}

// SimulationParameters mirrors costmodel.Params on the wire. Pointers tell an
// absent field apart from an explicit 0.
type SimulationParameters struct {
	OrderSize  *float64 `json:"orderSize" validate:"required,gt=0"`
	Volatility *float64 `json:"volatility" validate:"required,gte=0,lte=100"`
	FeeTier    string   `json:"feeTier" validate:"required,oneof=vip standard basic"`
	Side       string   `json:"side,omitempty" validate:"omitempty,oneof=buy sell"`
}

// SimulationRequest is the payload for POST /simulate
type SimulationRequest struct {
	OrderbookData OrderbookData        `json:"orderbookData"`
	Parameters    SimulationParameters `json:"parameters"`
}

// SnapshotRequest is the payload for POST /api/v1/orderbook and
// POST /api/v1/orderbook/aggregate. Empty sides are allowed here.
type SnapshotRequest struct {
	Bids      []orderbook.PriceLevel `json:"bids"`
	Asks      []orderbook.PriceLevel `json:"asks"`
	Timestamp int64                  `json:"timestamp"`
}

// LevelUpdate sets the total size resting at one price. Size 0 removes the level.
type LevelUpdate struct {
	Side  string   `json:"side" validate:"required,oneof=bid ask"`
	Price float64  `json:"price" validate:"gt=0"`
	Size  *float64 `json:"size" validate:"required,gte=0"`
}

// LevelUpdateRequest is the payload for POST /api/v1/orderbook/levels,
// an incremental alternative to posting full snapshots.
type LevelUpdateRequest struct {
	Updates   []LevelUpdate `json:"updates" validate:"min=1,dive"`
	Timestamp int64         `json:"timestamp"` // Unix milliseconds; now if omitted
}

// ==============================
// REST Response Types
// ==============================

// SimulationResponse is the cost estimate returned by POST /simulate
type SimulationResponse = costmodel.Estimate

// AggregatedOrderbook is an aggregated snapshot plus its spread
type AggregatedOrderbook struct {
	Symbol    string                 `json:"symbol"`
	Bids      []orderbook.DepthEntry `json:"bids"` // Sorted high to low
	Asks      []orderbook.DepthEntry `json:"asks"` // Sorted low to high
	Spread    SpreadInfo             `json:"spread"`
	MaxDepth  int                    `json:"maxDepth"`
	Timestamp int64                  `json:"timestamp"` // Unix milliseconds
}

// SpreadInfo reports an unavailable spread as nulls rather than a false zero
type SpreadInfo struct {
	Absolute  *float64 `json:"absolute"`
	Percent   *float64 `json:"percent"`
	Available bool     `json:"available"`
}

func newAggregatedOrderbook(symbol string, book orderbook.AggregatedBook, maxDepth int) AggregatedOrderbook {
	out := AggregatedOrderbook{
		Symbol:    symbol,
		Bids:      book.Bids,
		Asks:      book.Asks,
		MaxDepth:  maxDepth,
		Timestamp: book.Timestamp,
	}
	if s := book.Spread(); s.Available {
		out.Spread = SpreadInfo{Absolute: &s.Absolute, Percent: &s.Percent, Available: true}
	}
	return out
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"` // RFC3339
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"` // set for validation failures
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orderbook:BTC-USDT"]
}

// OrderbookUpdate is broadcast on every live book snapshot
type OrderbookUpdate struct {
	Type string `json:"type"` // "orderbook"
	AggregatedOrderbook
}
