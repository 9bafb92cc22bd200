package ledger

import (
	"fmt"
	"time"

	"github.com/rustyeddy/perptrader/market"
)

type Status int

const (
	Pending Status = iota // entry order submitted, fill not yet confirmed
	Open                  // filled, live on the exchange
	Closing               // exit order submitted
	Closed                // terminal
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Position is the engine's record of one directional exposure. It is owned
// by the Ledger: the executor and synchronizer submit intents, the Ledger
// applies them.
type Position struct {
	ID         string
	Instrument string
	Direction  market.Direction
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64

	// Trailing state: best price seen since entry, and when the stop order
	// was last replaced.
	HighWaterMark float64
	LastTrailAt   time.Time

	// Unprotected marks an Open position whose protective orders are not
	// all resting on the exchange. The monitor retries until it clears.
	Unprotected bool

	// Adopted marks a position the synchronizer took over from the
	// exchange rather than one the engine opened.
	Adopted bool

	EntryOrderID  string
	StopOrderID   string
	TargetOrderID string

	OpenedAt time.Time
	Status   Status

	ExitPrice  float64
	ExitReason string
	ClosedAt   time.Time
}

// Live reports whether the position still occupies its instrument slot.
func (p *Position) Live() bool {
	return p.Status != Closed
}

// RealizedPL is the quote-currency result of closing at exitPrice.
func (p *Position) RealizedPL(exitPrice float64) float64 {
	return p.Direction.Sign() * (exitPrice - p.EntryPrice) * p.Quantity
}

// validateRiskSides checks the stop/target invariant for a priced position:
// long stop < entry < target, short stop > entry > target.
func (p *Position) validateRiskSides() error {
	if p.EntryPrice <= 0 || p.StopLoss == 0 || p.TakeProfit == 0 {
		return nil // not fully priced yet (pending, or adopted without targets)
	}
	switch p.Direction {
	case market.Long:
		if p.StopLoss >= p.EntryPrice || p.TakeProfit <= p.EntryPrice {
			return fmt.Errorf("long %s: want stop %.8f < entry %.8f < target %.8f", p.Instrument, p.StopLoss, p.EntryPrice, p.TakeProfit)
		}
	case market.Short:
		if p.StopLoss <= p.EntryPrice || p.TakeProfit >= p.EntryPrice {
			return fmt.Errorf("short %s: want stop %.8f > entry %.8f > target %.8f", p.Instrument, p.StopLoss, p.EntryPrice, p.TakeProfit)
		}
	default:
		return fmt.Errorf("%s: position without direction", p.Instrument)
	}
	return nil
}
