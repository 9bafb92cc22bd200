package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/perptrader/indicators"
	"github.com/rustyeddy/perptrader/market"
)

// EMARSISource goes long when RSI is below the long threshold while price
// trades above the trend EMA, and short on the mirrored conditions. The
// trend filter keeps entries aligned with the prevailing direction; RSI
// picks the pullback.
type EMARSISource struct {
	*EMARSIConfig
}

type EMARSIConfig struct {
	EMAPeriod int     `yaml:"ema_period"` // 50
	RSIPeriod int     `yaml:"rsi_period"` // 14
	RSILong   float64 `yaml:"rsi_long"`   // enter long below this, e.g. 35
	RSIShort  float64 `yaml:"rsi_short"`  // enter short above this, e.g. 65
}

func EMARSIDefaults() *EMARSIConfig {
	return &EMARSIConfig{
		EMAPeriod: 50,
		RSIPeriod: 14,
		RSILong:   35,
		RSIShort:  65,
	}
}

func NewEMARSI(cfg *EMARSIConfig) *EMARSISource {
	if cfg == nil {
		cfg = EMARSIDefaults()
	}
	return &EMARSISource{EMARSIConfig: cfg}
}

func (s *EMARSISource) Evaluate(ctx context.Context, instrument string, candles []market.Candle) (Signal, error) {
	need := s.EMAPeriod
	if s.RSIPeriod+1 > need {
		need = s.RSIPeriod + 1
	}
	if len(candles) < need {
		return Signal{}, fmt.Errorf("ema-rsi %s: need %d candles, got %d", instrument, need, len(candles))
	}

	ema, err := indicators.EMA(candles, s.EMAPeriod)
	if err != nil {
		return Signal{}, err
	}
	rsi, err := indicators.RSI(candles, s.RSIPeriod)
	if err != nil {
		return Signal{}, err
	}

	price := candles[len(candles)-1].Close
	sig := Signal{
		Instrument: instrument,
		Direction:  market.Flat,
		Strategy:   "ema-rsi",
		Time:       time.Now().UTC(),
	}

	switch {
	case price > ema && rsi < s.RSILong:
		sig.Direction = market.Long
		sig.Strength = clamp01((s.RSILong - rsi) / s.RSILong)
	case price < ema && rsi > s.RSIShort:
		sig.Direction = market.Short
		sig.Strength = clamp01((rsi - s.RSIShort) / (100 - s.RSIShort))
	}
	return sig, nil
}

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}
