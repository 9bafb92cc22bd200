package market

import "time"

// Direction is the side of a signal or position.
type Direction int

const (
	Flat Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Sign returns +1 for long, -1 for short, 0 for flat. Useful for P&L math:
// realized = Sign * (exit - entry) * qty.
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// Opposite returns the reversed direction; Flat stays Flat.
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return Flat
	}
}

// Candle represents OHLC (Open, High, Low, Close) candlestick data.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Time   time.Time
	Volume float64
}

// Tick is a top-of-book quote for an instrument.
type Tick struct {
	Instrument string
	Time       time.Time
	Bid        float64
	Ask        float64
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Mark returns the price side used to value an existing position of the
// given direction: longs are marked at the bid, shorts at the ask.
func (t Tick) Mark(d Direction) float64 {
	if d == Short {
		return t.Ask
	}
	return t.Bid
}
