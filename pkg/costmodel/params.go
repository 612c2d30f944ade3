package costmodel

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// FeeTier is the account's trading fee category.
type FeeTier string

const (
	VIP      FeeTier = "vip"
	Standard FeeTier = "standard"
	Basic    FeeTier = "basic"
)

// Fee rates per notional unit, kept as decimals so size*rate is exact.
var feeRates = map[FeeTier]decimal.Decimal{
	VIP:      decimal.RequireFromString("0.0002"), // 0.02%
	Standard: decimal.RequireFromString("0.0005"), // 0.05%
	Basic:    decimal.RequireFromString("0.001"),  // 0.1%
}

// ParseFeeTier accepts a tier name in any case.
func ParseFeeTier(s string) (FeeTier, error) {
	tier := FeeTier(strings.ToLower(strings.TrimSpace(s)))
	if !tier.Valid() {
		return "", &ValidationError{Field: "feeTier", Value: s, Err: ErrUnknownFeeTier}
	}
	return tier, nil
}

func (t FeeTier) Valid() bool {
	_, ok := feeRates[t]
	return ok
}

// Rate returns the fee rate for the tier. ok is false for tiers outside the
// closed set; callers must not fall back to a default.
func (t FeeTier) Rate() (decimal.Decimal, bool) {
	r, ok := feeRates[t]
	return r, ok
}

func (t FeeTier) String() string { return string(t) }

// Side of the hypothetical order. Buys walk the asks, sells walk the bids.
type Side int

const (
	Buy Side = iota
	Sell
)

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, &ValidationError{Field: "side", Value: s, Err: ErrInvalidSide}
	}
}

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// Params describes the hypothetical order being costed.
type Params struct {
	OrderSize  float64 // > 0
	Volatility float64 // percent, 0..100
	FeeTier    FeeTier
	Side       Side // only used when walking book depth
}

// Validate checks params in field order and reports the first failure.
func (p Params) Validate() error {
	if math.IsNaN(p.OrderSize) || math.IsInf(p.OrderSize, 0) || p.OrderSize <= 0 {
		return &ValidationError{Field: "orderSize", Value: p.OrderSize, Err: ErrInvalidOrderSize}
	}
	if math.IsNaN(p.Volatility) || p.Volatility < 0 || p.Volatility > 100 {
		return &ValidationError{Field: "volatility", Value: p.Volatility, Err: ErrInvalidVolatility}
	}
	if !p.FeeTier.Valid() {
		return &ValidationError{Field: "feeTier", Value: string(p.FeeTier), Err: ErrUnknownFeeTier}
	}
	if p.Side != Buy && p.Side != Sell {
		return &ValidationError{Field: "side", Value: int(p.Side), Err: ErrInvalidSide}
	}
	return nil
}
