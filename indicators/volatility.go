package indicators

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/perptrader/exchange"
)

// ErrUnavailable means no usable volatility measure could be produced for
// the instrument. Sizing must reject the signal rather than guess.
var ErrUnavailable = errors.New("volatility unavailable")

// Stop-distance math blows up on degenerate ATR values, so the measure is
// clamped into a band relative to the last close: 0.5%..5% of price.
const (
	minATRFraction = 0.005
	maxATRFraction = 0.05
)

// ATRProvider measures instrument volatility as the clamped ATR of recent
// candles fetched from the market-data feed.
type ATRProvider struct {
	MD     exchange.MarketData
	Period int
}

func NewATRProvider(md exchange.MarketData, period int) *ATRProvider {
	return &ATRProvider{MD: md, Period: period}
}

func (p *ATRProvider) Measure(ctx context.Context, instrument string) (float64, error) {
	// Fetch a margin beyond warmup so Wilder smoothing has history to work on.
	candles, err := p.MD.GetCandles(ctx, instrument, p.Period*4)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(candles) < p.Period+1 {
		return 0, fmt.Errorf("%w: %d candles for period %d", ErrUnavailable, len(candles), p.Period)
	}

	atr, err := ATRFunc(candles, p.Period)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if atr <= 0 {
		return 0, ErrUnavailable
	}

	return ClampATR(atr, candles[len(candles)-1].Close), nil
}

// ClampATR bounds an ATR value relative to the reference price.
func ClampATR(atr, price float64) float64 {
	if price <= 0 {
		return atr
	}
	if min := price * minATRFraction; atr < min {
		return min
	}
	if max := price * maxATRFraction; atr > max {
		return max
	}
	return atr
}
