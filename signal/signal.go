// Package signal defines directional trade signals and the sources that
// produce them. A Signal lives for one engine cycle and is consumed once.
package signal

import (
	"context"
	"time"

	"github.com/rustyeddy/perptrader/market"
)

type Signal struct {
	Instrument string
	Direction  market.Direction
	Strength   float64 // 0..1 confidence; advisory only
	Strategy   string  // originating strategy tag
	Time       time.Time
}

// Flat reports whether the signal carries no directional view.
func (s Signal) Flat() bool {
	return s.Direction == market.Flat
}

// Source evaluates one instrument against recent candles and returns a
// signal; a Flat direction means "no trade this cycle", not an error.
type Source interface {
	Evaluate(ctx context.Context, instrument string, candles []market.Candle) (Signal, error)
}
