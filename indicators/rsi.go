package indicators

import (
	"fmt"

	"github.com/rustyeddy/perptrader/market"
)

// RSI calculates the Relative Strength Index of closes using Wilder's
// smoothing. Result is in [0, 100].
func RSI(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period+1, len(candles))
	}

	// Seed averages from the first `period` moves
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		move := candles[i].Close - candles[i-1].Close
		if move > 0 {
			avgGain += move
		} else {
			avgLoss -= move
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(candles); i++ {
		move := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if move > 0 {
			gain = move
		} else {
			loss = -move
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
