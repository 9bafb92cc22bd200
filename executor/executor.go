// Package executor turns sizer decisions into exchange orders and keeps
// live positions protected. Every multi-step operation runs under the
// ledger's per-instrument lock so entries, trails and exits never
// interleave on the same instrument.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/id"
	"github.com/rustyeddy/perptrader/risk"
	"github.com/rustyeddy/perptrader/signal"
)

// ErrEntryUnconfirmed wraps an entry whose outcome is unknown. The engine
// reconciles against the exchange before trading the instrument again.
var ErrEntryUnconfirmed = errors.New("entry order unconfirmed")

type Executor struct {
	gw       exchange.Gateway
	book     *ledger.Ledger
	trailMul float64 // ATR multiple for trailing stop distance

	inflight sync.WaitGroup
}

func New(gw exchange.Gateway, book *ledger.Ledger, trailMul float64) *Executor {
	return &Executor{gw: gw, book: book, trailMul: trailMul}
}

// Execute opens a position for an approved decision: market entry, then
// ledger registration, then protective orders. A timeout on the entry
// leaves the position Pending and returns ErrEntryUnconfirmed; protective
// failures leave the position open but flagged Unprotected for the
// monitor to retry.
func (e *Executor) Execute(ctx context.Context, sig signal.Signal, dec risk.Decision) (string, error) {
	e.inflight.Add(1)
	defer e.inflight.Done()

	lk := e.book.InstrumentLock(sig.Instrument)
	lk.Lock()
	defer lk.Unlock()

	pos := ledger.Position{
		ID:         id.New(),
		Instrument: sig.Instrument,
		Direction:  dec.Direction,
		EntryPrice: dec.Entry,
		Quantity:   dec.Size,
		StopLoss:   dec.Stop,
		TakeProfit: dec.Target,
	}
	if err := e.book.OpenPending(pos); err != nil {
		return "", err
	}

	ack, err := e.gw.PlaceOrder(ctx, exchange.OrderRequest{
		Instrument: sig.Instrument,
		Side:       exchange.EntrySide(dec.Direction),
		Qty:        dec.Size,
		Type:       exchange.Market,
	})
	if errors.Is(err, exchange.ErrTimeout) {
		return pos.ID, fmt.Errorf("%w: %s %s", ErrEntryUnconfirmed, sig.Instrument, pos.ID)
	}
	if err != nil {
		// Entry definitively rejected; the pending record is dead. No
		// trade happened, so this never touches account state.
		if aerr := e.book.Abort(pos.ID, "entry rejected"); aerr != nil {
			log.Printf("executor: drop pending %s: %v", pos.ID, aerr)
		}
		return "", fmt.Errorf("place entry %s: %w", sig.Instrument, err)
	}

	if err := e.book.SetEntryOrder(pos.ID, ack.OrderID); err != nil {
		return pos.ID, err
	}
	if err := e.book.ConfirmFill(pos.ID, ack.AvgPrice, ack.FilledQty); err != nil {
		return pos.ID, err
	}

	filled, _ := e.book.GetByID(pos.ID)
	if err := e.protect(ctx, filled); err != nil {
		log.Printf("executor: protect %s: %v", pos.ID, err)
		if merr := e.book.MarkUnprotected(pos.ID); merr != nil {
			log.Printf("executor: mark unprotected %s: %v", pos.ID, merr)
		}
	}
	return pos.ID, nil
}

// Protect places any missing protective orders for an unprotected
// position. Safe to call repeatedly; it is the monitor's retry path.
func (e *Executor) Protect(ctx context.Context, posID string) error {
	e.inflight.Add(1)
	defer e.inflight.Done()

	pos, ok := e.book.GetByID(posID)
	if !ok {
		return ledger.ErrNotFound
	}

	lk := e.book.InstrumentLock(pos.Instrument)
	lk.Lock()
	defer lk.Unlock()

	pos, ok = e.book.GetByID(posID)
	if !ok || pos.Status != ledger.Open {
		return nil
	}
	return e.protect(ctx, pos)
}

// protect must run under the instrument lock.
func (e *Executor) protect(ctx context.Context, pos ledger.Position) error {
	stopID := pos.StopOrderID
	targetID := pos.TargetOrderID
	side := exchange.ExitSide(pos.Direction)

	if stopID == "" {
		ack, err := e.gw.PlaceOrder(ctx, exchange.OrderRequest{
			Instrument: pos.Instrument,
			Side:       side,
			Qty:        pos.Quantity,
			Type:       exchange.StopMarket,
			StopPrice:  pos.StopLoss,
			ReduceOnly: true,
		})
		if err != nil {
			return fmt.Errorf("place stop: %w", err)
		}
		stopID = ack.OrderID
	}
	if targetID == "" {
		ack, err := e.gw.PlaceOrder(ctx, exchange.OrderRequest{
			Instrument: pos.Instrument,
			Side:       side,
			Qty:        pos.Quantity,
			Type:       exchange.TakeProfit,
			StopPrice:  pos.TakeProfit,
			ReduceOnly: true,
		})
		if err != nil {
			// Record the stop we did place so the retry only fills the gap.
			if serr := e.book.SetProtection(pos.ID, stopID, ""); serr != nil {
				log.Printf("executor: record partial protection %s: %v", pos.ID, serr)
			}
			return fmt.Errorf("place target: %w", err)
		}
		targetID = ack.OrderID
	}
	return e.book.SetProtection(pos.ID, stopID, targetID)
}

// Trail advances the trailing stop off the high-water mark. The ledger
// rejects any replacement that would loosen the stop, so a stale ATR can
// never widen risk. Cancel-then-replace: a cancel followed by a failed
// replace leaves the position unprotected on the stop side, which the
// monitor repairs on the next pass.
func (e *Executor) Trail(ctx context.Context, posID string, vol float64) error {
	e.inflight.Add(1)
	defer e.inflight.Done()

	pos, ok := e.book.GetByID(posID)
	if !ok {
		return ledger.ErrNotFound
	}

	lk := e.book.InstrumentLock(pos.Instrument)
	lk.Lock()
	defer lk.Unlock()

	pos, ok = e.book.GetByID(posID)
	if !ok || pos.Status != ledger.Open {
		return nil
	}

	newStop := risk.TrailingStop(pos.HighWaterMark, vol, e.trailMul, pos.Direction)
	tightens := (pos.Direction == market.Long && newStop > pos.StopLoss) ||
		(pos.Direction == market.Short && newStop < pos.StopLoss)
	if !tightens {
		return nil
	}

	if pos.StopOrderID != "" {
		if err := e.gw.CancelOrder(ctx, pos.Instrument, pos.StopOrderID); err != nil {
			return fmt.Errorf("cancel stop %s: %w", pos.StopOrderID, err)
		}
	}
	ack, err := e.gw.PlaceOrder(ctx, exchange.OrderRequest{
		Instrument: pos.Instrument,
		Side:       exchange.ExitSide(pos.Direction),
		Qty:        pos.Quantity,
		Type:       exchange.StopMarket,
		StopPrice:  newStop,
		ReduceOnly: true,
	})
	if err != nil {
		if serr := e.book.SetProtection(pos.ID, "", pos.TargetOrderID); serr != nil {
			log.Printf("executor: record lost stop %s: %v", pos.ID, serr)
		}
		return fmt.Errorf("replace stop: %w", err)
	}
	return e.book.UpdateStop(pos.ID, newStop, ack.OrderID, time.Now().UTC())
}

// CheckExit closes the position if the mark price has crossed its stop or
// target. This is the monitor-side exit for venues whose protective orders
// are simulated rather than resting at the exchange.
func (e *Executor) CheckExit(ctx context.Context, posID string, tick market.Tick) error {
	pos, ok := e.book.GetByID(posID)
	if !ok || pos.Status != ledger.Open {
		return nil
	}

	mark := tick.Mark(pos.Direction)
	var reason string
	switch {
	case pos.Direction == market.Long && mark <= pos.StopLoss,
		pos.Direction == market.Short && mark >= pos.StopLoss:
		reason = "stop loss"
	case pos.Direction == market.Long && mark >= pos.TakeProfit,
		pos.Direction == market.Short && mark <= pos.TakeProfit:
		reason = "take profit"
	default:
		return nil
	}
	return e.ClosePosition(ctx, posID, reason)
}

// ClosePosition cancels any protective orders and flattens the position
// with a reduce-only market order. Closing an already closed position is
// a no-op.
func (e *Executor) ClosePosition(ctx context.Context, posID, reason string) error {
	e.inflight.Add(1)
	defer e.inflight.Done()

	pos, ok := e.book.GetByID(posID)
	if !ok {
		return ledger.ErrNotFound
	}

	lk := e.book.InstrumentLock(pos.Instrument)
	lk.Lock()
	defer lk.Unlock()

	pos, ok = e.book.GetByID(posID)
	if !ok || pos.Status == ledger.Closed {
		return nil
	}

	if err := e.book.MarkClosing(posID); err != nil {
		return err
	}

	for _, oid := range []string{pos.StopOrderID, pos.TargetOrderID} {
		if oid == "" {
			continue
		}
		if err := e.gw.CancelOrder(ctx, pos.Instrument, oid); err != nil {
			// Already-triggered or already-gone orders are fine to skip.
			log.Printf("executor: cancel %s on %s: %v", oid, pos.Instrument, err)
		}
	}

	ack, err := e.gw.PlaceOrder(ctx, exchange.OrderRequest{
		Instrument: pos.Instrument,
		Side:       exchange.ExitSide(pos.Direction),
		Qty:        pos.Quantity,
		Type:       exchange.Market,
		ReduceOnly: true,
	})
	if err != nil {
		// The protective orders are already canceled, so a position stuck
		// in Closing has nothing resting at the venue. Reopen it flagged
		// unprotected: the monitor re-protects and re-checks the exit, and
		// if a timed-out exit did fill the synchronizer closes it.
		if rerr := e.book.ReopenClosing(posID); rerr != nil {
			log.Printf("executor: reopen %s after failed exit: %v", posID, rerr)
		}
		if errors.Is(err, exchange.ErrTimeout) {
			return fmt.Errorf("%w: exit %s", ErrEntryUnconfirmed, posID)
		}
		return fmt.Errorf("place exit %s: %w", pos.Instrument, err)
	}

	exit := ack.AvgPrice
	if exit == 0 {
		exit = pos.EntryPrice
	}
	return e.book.Close(posID, exit, reason)
}

// Wait blocks until all in-flight order operations finish. Called during
// shutdown so no order is abandoned mid-flight.
func (e *Executor) Wait() { e.inflight.Wait() }
