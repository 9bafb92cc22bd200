// Package risk converts a directional signal into a concrete, bounded
// order: size, stop, and target. Sizing is pure — no shared state, fully
// deterministic given its inputs.
package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/signal"
)

// Rejection codes.
const (
	CodeFlatSignal      = "FLAT_SIGNAL"
	CodeBadVolatility   = "BAD_VOLATILITY"
	CodeZeroSize        = "ZERO_SIZE"
	CodeSizeOutOfBounds = "SIZE_OUT_OF_BOUNDS"
)

// Rejection means the signal cannot be turned into a safe order. It is
// recoverable: the engine skips the instrument for this cycle.
type Rejection struct {
	Code string
	Msg  string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Msg)
}

// Decision is a fully sized trade plan, consumed immediately by the
// executor or discarded.
type Decision struct {
	Direction  market.Direction
	Size       float64 // instrument units
	Entry      float64 // entry price estimate
	Stop       float64
	Target     float64
	RiskAmount float64 // quote currency lost if the stop is hit
	ATR        float64 // volatility measure used, kept for trailing updates
}

// StopDistance returns the absolute distance between entry and stop.
func (d Decision) StopDistance() float64 {
	return math.Abs(d.Entry - d.Stop)
}

type Sizer struct {
	RiskPerTradePct    float64 // fraction of equity risked per trade, e.g. 0.02
	StopLossMultiplier float64 // stop distance = vol * this, e.g. 2
	RewardMultiple     float64 // target distance = stop distance * this, e.g. 2
	MinOrderSize       float64 // exchange minimum, instrument units
	MaxNotional        float64 // size*entry cap in quote currency

	// SizeStep rounds size down to the instrument's lot increment when set.
	SizeStep float64
}

// Size prices a signal into a Decision, or returns a *Rejection.
//
// riskAmount = equity * RiskPerTradePct
// stopDistance = vol * StopLossMultiplier
// size = riskAmount / stopDistance
func (s Sizer) Size(sig signal.Signal, equity, entry, vol float64) (Decision, error) {
	if sig.Direction == market.Flat {
		return Decision{}, &Rejection{CodeFlatSignal, "signal has no direction"}
	}
	if vol <= 0 {
		return Decision{}, &Rejection{CodeBadVolatility, fmt.Sprintf("volatility measure %.8f is not positive", vol)}
	}
	if entry <= 0 {
		return Decision{}, &Rejection{CodeBadVolatility, fmt.Sprintf("entry price %.8f is not positive", entry)}
	}

	riskAmount := equity * s.RiskPerTradePct
	stopDistance := vol * s.StopLossMultiplier
	size := riskAmount / stopDistance

	if s.SizeStep > 0 {
		size = math.Floor(size/s.SizeStep) * s.SizeStep
	}
	if size <= 0 {
		return Decision{}, &Rejection{CodeZeroSize, "computed size rounds to zero"}
	}
	if size < s.MinOrderSize {
		return Decision{}, &Rejection{CodeSizeOutOfBounds, fmt.Sprintf("size out of bounds: %.8f below exchange minimum %.8f", size, s.MinOrderSize)}
	}
	if s.MaxNotional > 0 && size*entry > s.MaxNotional {
		return Decision{}, &Rejection{CodeSizeOutOfBounds, fmt.Sprintf("size out of bounds: notional %.2f above cap %.2f", size*entry, s.MaxNotional)}
	}

	// Stop on the loss side of entry, target RewardMultiple stops away on
	// the profit side.
	sign := sig.Direction.Sign()
	stop := entry - sign*stopDistance
	target := entry + sign*stopDistance*s.RewardMultiple

	return Decision{
		Direction:  sig.Direction,
		Size:       size,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		RiskAmount: size * stopDistance,
		ATR:        vol,
	}, nil
}

// TrailingStop computes a candidate stop trailing the high-water mark by
// trailMult ATRs. Callers must still enforce tighten-only replacement.
func TrailingStop(highWaterMark, atr, trailMult float64, dir market.Direction) float64 {
	return highWaterMark - dir.Sign()*atr*trailMult
}
