// Package syncer reconciles the ledger against the exchange's reported
// positions. The exchange is the source of truth for existence and
// quantity; the ledger is the source of truth for stops and targets.
package syncer

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/pkg/id"
)

// qtyTolerance absorbs exchange rounding; drift below it is not a
// correction.
const qtyTolerance = 1e-9

type CorrectionKind string

const (
	Adopted          CorrectionKind = "adopted"
	ExternallyClosed CorrectionKind = "externally_closed"
	QuantityDrift    CorrectionKind = "quantity_drift"
	FillConfirmed    CorrectionKind = "fill_confirmed"
	EntryVanished    CorrectionKind = "entry_vanished"
)

type Correction struct {
	Kind       CorrectionKind
	Instrument string
	PositionID string
	Detail     string
}

// VolatilityFunc supplies the clamped volatility measure used to derive
// protective levels for adopted positions.
type VolatilityFunc func(ctx context.Context, instrument string) (float64, error)

type Synchronizer struct {
	gw   exchange.Gateway
	book *ledger.Ledger
	vol  VolatilityFunc

	stopMul           float64 // stop distance in volatility multiples
	rewardMul         float64 // target distance in stop-distance multiples
	fallbackStopPct   float64 // stop distance as a fraction of entry when vol is unavailable
	fallbackTargetPct float64 // target distance as a fraction of entry when vol is unavailable
}

func New(gw exchange.Gateway, book *ledger.Ledger, vol VolatilityFunc, stopMul, rewardMul, fallbackStopPct, fallbackTargetPct float64) *Synchronizer {
	return &Synchronizer{
		gw:                gw,
		book:              book,
		vol:               vol,
		stopMul:           stopMul,
		rewardMul:         rewardMul,
		fallbackStopPct:   fallbackStopPct,
		fallbackTargetPct: fallbackTargetPct,
	}
}

// Reconcile compares exchange positions against the ledger and repairs
// every divergence it finds. It returns the corrections applied; an error
// means the exchange snapshot itself could not be fetched and nothing was
// changed.
func (s *Synchronizer) Reconcile(ctx context.Context) ([]Correction, error) {
	exPositions, err := s.gw.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	byInstrument := make(map[string]exchange.ExchangePosition, len(exPositions))
	for _, ep := range exPositions {
		if ep.Qty > 0 {
			byInstrument[ep.Instrument] = ep
		}
	}

	var out []Correction

	for _, pos := range s.book.Snapshot() {
		lk := s.book.InstrumentLock(pos.Instrument)
		lk.Lock()
		c, err := s.reconcileKnown(ctx, pos.ID, byInstrument)
		lk.Unlock()
		if err != nil {
			log.Printf("syncer: %s %s: %v", pos.Instrument, pos.ID, err)
			continue
		}
		out = append(out, c...)
		delete(byInstrument, pos.Instrument)
	}

	// Whatever remains exists only at the exchange.
	for _, ep := range byInstrument {
		lk := s.book.InstrumentLock(ep.Instrument)
		lk.Lock()
		c, err := s.adopt(ctx, ep)
		lk.Unlock()
		if err != nil {
			log.Printf("syncer: adopt %s: %v", ep.Instrument, err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// reconcileKnown runs under the instrument lock.
func (s *Synchronizer) reconcileKnown(ctx context.Context, posID string, exch map[string]exchange.ExchangePosition) ([]Correction, error) {
	pos, ok := s.book.GetByID(posID)
	if !ok || pos.Status == ledger.Closed {
		return nil, nil
	}
	ep, onExchange := exch[pos.Instrument]

	switch pos.Status {
	case ledger.Pending:
		return s.resolvePending(ctx, pos, ep, onExchange)

	case ledger.Open, ledger.Closing:
		if !onExchange {
			return s.closeExternal(ctx, pos)
		}
		if math.Abs(ep.Qty-pos.Quantity) > qtyTolerance {
			if err := s.book.SetQuantity(pos.ID, ep.Qty); err != nil {
				return nil, err
			}
			return []Correction{{
				Kind:       QuantityDrift,
				Instrument: pos.Instrument,
				PositionID: pos.ID,
				Detail:     fmt.Sprintf("qty %.8f -> %.8f", pos.Quantity, ep.Qty),
			}}, nil
		}
	}
	return nil, nil
}

// resolvePending settles an entry whose order call timed out: the exchange
// either has the position (the order filled) or it does not (the order
// never landed).
func (s *Synchronizer) resolvePending(ctx context.Context, pos ledger.Position, ep exchange.ExchangePosition, onExchange bool) ([]Correction, error) {
	if onExchange {
		if err := s.book.ConfirmFill(pos.ID, ep.AvgEntry, ep.Qty); err != nil {
			return nil, err
		}
		// No protective orders were placed; the monitor picks it up.
		if err := s.book.MarkUnprotected(pos.ID); err != nil {
			return nil, err
		}
		return []Correction{{
			Kind:       FillConfirmed,
			Instrument: pos.Instrument,
			PositionID: pos.ID,
			Detail:     fmt.Sprintf("filled at %.8f", ep.AvgEntry),
		}}, nil
	}

	if err := s.book.Abort(pos.ID, "entry not on exchange"); err != nil {
		return nil, err
	}
	return []Correction{{
		Kind:       EntryVanished,
		Instrument: pos.Instrument,
		PositionID: pos.ID,
	}}, nil
}

// closeExternal finalizes a ledger position the exchange no longer holds,
// at the most recent fill price when one is available.
func (s *Synchronizer) closeExternal(ctx context.Context, pos ledger.Position) ([]Correction, error) {
	exit := pos.EntryPrice
	if fills, err := s.gw.GetRecentFills(ctx, pos.Instrument); err == nil {
		for i := len(fills) - 1; i >= 0; i-- {
			if fills[i].Side == exchange.ExitSide(pos.Direction) {
				exit = fills[i].Price
				break
			}
		}
	} else {
		log.Printf("syncer: fills %s: %v", pos.Instrument, err)
	}

	if err := s.book.Close(pos.ID, exit, "externally closed"); err != nil {
		return nil, err
	}
	return []Correction{{
		Kind:       ExternallyClosed,
		Instrument: pos.Instrument,
		PositionID: pos.ID,
		Detail:     fmt.Sprintf("exit %.8f", exit),
	}}, nil
}

// adopt registers an exchange position the engine never opened. Stops and
// targets are derived from current volatility, never trusted from the
// exchange; the position stays flagged unprotected until the monitor
// places them.
func (s *Synchronizer) adopt(ctx context.Context, ep exchange.ExchangePosition) (Correction, error) {
	stopDist := s.fallbackStopPct * ep.AvgEntry
	targetDist := s.fallbackTargetPct * ep.AvgEntry
	if v, err := s.vol(ctx, ep.Instrument); err == nil {
		stopDist = v * s.stopMul
		targetDist = stopDist * s.rewardMul
	} else {
		log.Printf("syncer: volatility %s: %v", ep.Instrument, err)
	}

	sign := float64(ep.Direction.Sign())
	pos := ledger.Position{
		ID:         id.New(),
		Instrument: ep.Instrument,
		Direction:  ep.Direction,
		EntryPrice: ep.AvgEntry,
		Quantity:   ep.Qty,
		StopLoss:   ep.AvgEntry - sign*stopDist,
		TakeProfit: ep.AvgEntry + sign*targetDist,
	}
	if err := s.book.Adopt(pos); err != nil {
		return Correction{}, err
	}
	return Correction{
		Kind:       Adopted,
		Instrument: ep.Instrument,
		PositionID: pos.ID,
		Detail:     fmt.Sprintf("%s %.8f @ %.8f", ep.Direction, ep.Qty, ep.AvgEntry),
	}, nil
}
