package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/signal"
)

func longSignal(instrument string) signal.Signal {
	return signal.Signal{Instrument: instrument, Direction: market.Long, Strength: 1}
}

func shortSignal(instrument string) signal.Signal {
	return signal.Signal{Instrument: instrument, Direction: market.Short, Strength: 1}
}

func TestSize_LongBasics(t *testing.T) {
	t.Parallel()

	s := Sizer{
		RiskPerTradePct:    0.02,
		StopLossMultiplier: 2,
		RewardMultiple:     2,
		MinOrderSize:       0.001,
		MaxNotional:        1e9,
	}

	// 10000 equity, 2% risk, ATR 50, x2 stop: risk 200, stop distance 100,
	// size 2.
	dec, err := s.Size(longSignal("BTCUSDT"), 10000, 40000, 50)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, dec.Size, 1e-9)
	assert.InDelta(t, 200.0, dec.RiskAmount, 1e-9)
	assert.InDelta(t, 100.0, dec.StopDistance(), 1e-9)
	assert.InDelta(t, 39900.0, dec.Stop, 1e-9)
	assert.InDelta(t, 40200.0, dec.Target, 1e-9)
	assert.Equal(t, market.Long, dec.Direction)
}

func TestSize_ShortMirrorsLong(t *testing.T) {
	t.Parallel()

	s := Sizer{RiskPerTradePct: 0.02, StopLossMultiplier: 2, RewardMultiple: 3}

	dec, err := s.Size(shortSignal("ETHUSDT"), 10000, 2000, 10)
	require.NoError(t, err)

	// Short: stop above entry, target below.
	assert.Greater(t, dec.Stop, dec.Entry)
	assert.Less(t, dec.Target, dec.Entry)
	assert.InDelta(t, 2020.0, dec.Stop, 1e-9)
	assert.InDelta(t, 1940.0, dec.Target, 1e-9)
}

func TestSize_TargetIsRewardMultipleOfStopDistance(t *testing.T) {
	t.Parallel()

	s := Sizer{RiskPerTradePct: 0.01, StopLossMultiplier: 1.5, RewardMultiple: 2.5}

	dec, err := s.Size(longSignal("BTCUSDT"), 20000, 50000, 200)
	require.NoError(t, err)

	targetDist := dec.Target - dec.Entry
	assert.InDelta(t, 2.5*dec.StopDistance(), targetDist, 1e-9)
}

func TestSize_Rejections(t *testing.T) {
	t.Parallel()

	s := Sizer{
		RiskPerTradePct:    0.02,
		StopLossMultiplier: 2,
		RewardMultiple:     2,
		MinOrderSize:       0.001,
		MaxNotional:        10000,
	}

	tests := []struct {
		name     string
		sig      signal.Signal
		equity   float64
		entry    float64
		vol      float64
		wantCode string
	}{
		{"flat signal", signal.Signal{Instrument: "BTCUSDT"}, 10000, 40000, 50, CodeFlatSignal},
		{"zero volatility", longSignal("BTCUSDT"), 10000, 40000, 0, CodeBadVolatility},
		{"negative volatility", longSignal("BTCUSDT"), 10000, 40000, -3, CodeBadVolatility},
		{"zero entry", longSignal("BTCUSDT"), 10000, 0, 50, CodeBadVolatility},
		{"below exchange minimum", longSignal("BTCUSDT"), 10, 40000, 5000, CodeSizeOutOfBounds},
		{"notional above cap", longSignal("BTCUSDT"), 1e7, 40000, 50, CodeSizeOutOfBounds},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := s.Size(tt.sig, tt.equity, tt.entry, tt.vol)
			var rej *Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.wantCode, rej.Code)
		})
	}
}

func TestSize_SizeStepFloors(t *testing.T) {
	t.Parallel()

	s := Sizer{
		RiskPerTradePct:    0.02,
		StopLossMultiplier: 2,
		RewardMultiple:     2,
		SizeStep:           0.1,
	}

	// Raw size 200/90 = 2.222..., floored to 2.2.
	dec, err := s.Size(longSignal("BTCUSDT"), 10000, 40000, 45)
	require.NoError(t, err)
	assert.InDelta(t, 2.2, dec.Size, 1e-9)
}

func TestTrailingStop(t *testing.T) {
	t.Parallel()

	// Long trails below the high-water mark, short above.
	assert.InDelta(t, 40800.0, TrailingStop(41000, 100, 2, market.Long), 1e-9)
	assert.InDelta(t, 39200.0, TrailingStop(39000, 100, 2, market.Short), 1e-9)
}
