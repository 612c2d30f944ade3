package costmodel

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradesim/pkg/orderbook"
	"github.com/uhyunpark/tradesim/pkg/util"
)

const (
	slippageDivisor = 10000.0
	impactDivisor   = 5000.0 // impact is twice the slippage term
	maxTakerShare   = 0.9
)

// ImpactMode selects how market impact is derived.
type ImpactMode string

const (
	// ImpactClosedForm uses size*volatility/5000 and ignores the book.
	ImpactClosedForm ImpactMode = "closed_form"
	// ImpactDepthWalk walks the supplied book's visible depth when one is given.
	ImpactDepthWalk ImpactMode = "depth_walk"
)

func ParseImpactMode(s string) (ImpactMode, error) {
	switch m := ImpactMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ImpactClosedForm:
		return ImpactClosedForm, nil
	case ImpactDepthWalk:
		return ImpactDepthWalk, nil
	default:
		return "", fmt.Errorf("unknown impact mode %q (want %s or %s)", s, ImpactClosedForm, ImpactDepthWalk)
	}
}

// MakerTakerSplit is the expected share of the order filled passively vs aggressively.
type MakerTakerSplit struct {
	Maker float64 `json:"maker"`
	Taker float64 `json:"taker"`
}

// Timings are stage latencies of one Estimate call, in milliseconds.
// The wire names predate the model and are kept for client compatibility.
type Timings struct {
	ProcessingMs float64 `json:"processingLatency"`
	ModelMs      float64 `json:"uiUpdateLatency"`
	TotalMs      float64 `json:"endToEndLatency"`
}

// Estimate is the predicted execution cost of one order.
type Estimate struct {
	Slippage     float64         `json:"slippage"`
	Fees         float64         `json:"fees"`
	MarketImpact float64         `json:"marketImpact"`
	NetCost      float64         `json:"netCost"`
	MakerTaker   MakerTakerSplit `json:"makerTakerProportion"`
	Timings      Timings         `json:"performanceMetrics"`
	Timestamp    int64           `json:"timestamp"` // Unix milliseconds
}

// Model computes cost estimates. The zero value is not usable; use NewModel.
// A Model holds no per-call state and may be shared between goroutines.
type Model struct {
	Mode   ImpactMode
	Clock  util.Clock
	Logger *zap.SugaredLogger
}

func NewModel(mode ImpactMode) *Model {
	if mode == "" {
		mode = ImpactClosedForm
	}
	return &Model{
		Mode:   mode,
		Clock:  util.RealClock{},
		Logger: zap.NewNop().Sugar(),
	}
}

// Estimate prices an order described by params. book is optional; it only
// matters when the model runs in ImpactDepthWalk mode.
//
// The only error is an invalid params value, returned before anything is
// computed.
func (m *Model) Estimate(params Params, book *orderbook.AggregatedBook) (Estimate, error) {
	start := m.Clock.Now()

	if err := params.Validate(); err != nil {
		return Estimate{}, err
	}
	rate, _ := params.FeeTier.Rate()
	walkBook := m.Mode == ImpactDepthWalk && book != nil
	processed := m.Clock.Now()

	slippage := Slippage(params.OrderSize, params.Volatility)
	fees := Fees(params.OrderSize, rate)
	impact := ClosedFormImpact(params.OrderSize, params.Volatility)
	if walkBook {
		if walked, ok := DepthWalkImpact(*book, params.Side, params.OrderSize, params.Volatility); ok {
			impact = walked
		}
	}
	split := MakerTaker(params.Volatility)
	modeled := m.Clock.Now()

	est := Estimate{
		Slippage:     slippage,
		Fees:         fees,
		MarketImpact: impact,
		NetCost:      slippage + fees + impact,
		MakerTaker:   split,
	}

	end := m.Clock.Now()
	est.Timings = Timings{
		ProcessingMs: millis(processed.Sub(start)),
		ModelMs:      millis(modeled.Sub(processed)),
		TotalMs:      millis(end.Sub(start)),
	}
	est.Timestamp = end.UnixMilli()

	m.Logger.Debugw("estimate_stages",
		"processing_ms", est.Timings.ProcessingMs,
		"model_ms", est.Timings.ModelMs,
		"total_ms", est.Timings.TotalMs,
		"depth_walk", walkBook)

	return est, nil
}

// Slippage is linear in size and volatility.
func Slippage(orderSize, volatility float64) float64 {
	return orderSize * volatility / slippageDivisor
}

// Fees charges rate on the order size.
func Fees(orderSize float64, rate decimal.Decimal) float64 {
	return decimal.NewFromFloat(orderSize).Mul(rate).InexactFloat64()
}

// ClosedFormImpact is a linearised Almgren-Chriss temporary impact term.
func ClosedFormImpact(orderSize, volatility float64) float64 {
	return orderSize * volatility / impactDivisor
}

// MakerTaker grows the taker share with volatility, capped so at least 10%
// of the order rests.
func MakerTaker(volatility float64) MakerTakerSplit {
	taker := min(maxTakerShare, volatility/100)
	return MakerTakerSplit{Maker: 1 - taker, Taker: taker}
}

// millis never goes negative, even if the clock steps backwards.
func millis(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
