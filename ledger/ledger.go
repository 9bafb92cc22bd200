// Package ledger is the authoritative in-process record of open and closed
// positions. All mutation goes through Ledger methods; callers doing
// multi-step work (validate, network call, apply) serialize per instrument
// via InstrumentLock so a protective-order placement never races a close.
package ledger

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/safety"
)

var (
	ErrNotFound  = errors.New("position not found")
	ErrDuplicate = errors.New("instrument already has a live position")
)

// CloseListener is notified after a position actually closes (idempotent
// duplicate closes do not renotify). Called with internal locks released.
type CloseListener interface {
	OnPositionClosed(pos Position, realized float64)
}

type CloseListenerFunc func(Position, float64)

func (f CloseListenerFunc) OnPositionClosed(pos Position, realized float64) { f(pos, realized) }

type Ledger struct {
	mu        sync.Mutex
	positions map[string]*Position // by position ID
	live      map[string]string    // instrument -> live position ID
	locks     map[string]*sync.Mutex

	acct     *safety.AccountState
	jrnl     journal.Journal
	listener CloseListener

	now func() time.Time
}

func New(acct *safety.AccountState, jrnl journal.Journal) *Ledger {
	return &Ledger{
		positions: make(map[string]*Position),
		live:      make(map[string]string),
		locks:     make(map[string]*sync.Mutex),
		acct:      acct,
		jrnl:      jrnl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) SetCloseListener(cl CloseListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = cl
}

// InstrumentLock returns the mutex serializing multi-step operations on one
// instrument. The ledger's own state lock is never held across network I/O;
// this one may be, and that is the ordering guarantee between the executor
// and the synchronizer.
func (l *Ledger) InstrumentLock(instrument string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[instrument]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[instrument] = lk
	}
	return lk
}

// OpenPending registers a position whose entry order has been submitted.
// Enforces at most one live position per instrument.
func (l *Ledger) OpenPending(p Position) error {
	if err := p.validateRiskSides(); err != nil {
		return err
	}

	l.mu.Lock()
	if id, ok := l.live[p.Instrument]; ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s held by %s", ErrDuplicate, p.Instrument, id)
	}
	p.Status = Pending
	if p.OpenedAt.IsZero() {
		p.OpenedAt = l.now()
	}
	cp := p
	l.positions[p.ID] = &cp
	l.live[p.Instrument] = p.ID
	l.mu.Unlock()

	l.journalEvent(&cp, "entry submitted", 0)
	return nil
}

// SetEntryOrder records the exchange order ID of the entry once it is
// acknowledged.
func (l *Ledger) SetEntryOrder(id, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok {
		return ErrNotFound
	}
	p.EntryOrderID = orderID
	return nil
}

// ConfirmFill moves a Pending position to Open at the confirmed fill price.
func (l *Ledger) ConfirmFill(id string, fillPrice, qty float64) error {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if p.Status != Pending {
		l.mu.Unlock()
		return fmt.Errorf("confirm fill %s: status %s", id, p.Status)
	}
	if fillPrice > 0 {
		p.EntryPrice = fillPrice
	}
	if qty > 0 {
		p.Quantity = qty
	}
	p.HighWaterMark = p.EntryPrice
	p.Status = Open
	cp := *p
	l.mu.Unlock()

	l.journalEvent(&cp, "entry filled", 0)
	return nil
}

// Adopt registers an exchange-reported position the engine has no record
// of, already Open. Risk parameters come from configured defaults, never
// from exchange data.
func (l *Ledger) Adopt(p Position) error {
	if err := p.validateRiskSides(); err != nil {
		return err
	}

	l.mu.Lock()
	if id, ok := l.live[p.Instrument]; ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s held by %s", ErrDuplicate, p.Instrument, id)
	}
	p.Status = Open
	p.Adopted = true
	p.Unprotected = true
	if p.OpenedAt.IsZero() {
		p.OpenedAt = l.now()
	}
	if p.HighWaterMark == 0 {
		p.HighWaterMark = p.EntryPrice
	}
	cp := p
	l.positions[p.ID] = &cp
	l.live[p.Instrument] = p.ID
	l.mu.Unlock()

	l.journalEvent(&cp, "adopted from exchange", 0)
	return nil
}

// SetProtection records resting protective orders and clears the
// unprotected flag.
func (l *Ledger) SetProtection(id, stopOrderID, targetOrderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok {
		return ErrNotFound
	}
	p.StopOrderID = stopOrderID
	p.TargetOrderID = targetOrderID
	p.Unprotected = stopOrderID == "" || targetOrderID == ""
	return nil
}

// MarkUnprotected flags a filled position whose protective orders are not
// fully placed. The monitor retries it every tick.
func (l *Ledger) MarkUnprotected(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok {
		return ErrNotFound
	}
	p.Unprotected = true
	return nil
}

// UpdateStop applies a trailing-stop replacement. Replacements that would
// loosen the stop are rejected: for a long the stop only rises, for a
// short it only falls.
func (l *Ledger) UpdateStop(id string, newStop float64, newStopOrderID string, at time.Time) error {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if p.Status != Open {
		l.mu.Unlock()
		return fmt.Errorf("update stop %s: status %s", id, p.Status)
	}
	loosens := (p.Direction == market.Long && newStop <= p.StopLoss) ||
		(p.Direction == market.Short && newStop >= p.StopLoss)
	if p.StopLoss != 0 && loosens {
		l.mu.Unlock()
		return fmt.Errorf("update stop %s: %.8f would loosen %.8f", id, newStop, p.StopLoss)
	}
	p.StopLoss = newStop
	if newStopOrderID != "" {
		p.StopOrderID = newStopOrderID
	}
	p.LastTrailAt = at
	cp := *p
	l.mu.Unlock()

	l.journalEvent(&cp, "trailing stop tightened", 0)
	return nil
}

// UpdateHighWaterMark advances the best favorable price seen. Moves in the
// adverse direction are ignored.
func (l *Ledger) UpdateHighWaterMark(id string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok {
		return
	}
	if (p.Direction == market.Long && price > p.HighWaterMark) ||
		(p.Direction == market.Short && (p.HighWaterMark == 0 || price < p.HighWaterMark)) {
		p.HighWaterMark = price
	}
}

// SetQuantity reconciles quantity drift reported by the exchange.
func (l *Ledger) SetQuantity(id string, qty float64) error {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	p.Quantity = qty
	cp := *p
	l.mu.Unlock()

	l.journalEvent(&cp, "quantity reconciled", 0)
	return nil
}

// Abort discards a position whose entry never filled: the instrument slot
// frees and the record closes, but no trade happened, so account state,
// the loss streak and the close listener are all untouched. Idempotent.
func (l *Ledger) Abort(id, reason string) error {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if p.Status == Closed {
		l.mu.Unlock()
		return nil
	}
	if p.Status != Pending {
		l.mu.Unlock()
		return fmt.Errorf("abort %s: status %s", id, p.Status)
	}
	p.Status = Closed
	p.ExitReason = reason
	p.ClosedAt = l.now()
	delete(l.live, p.Instrument)
	cp := *p
	l.mu.Unlock()

	l.journalEvent(&cp, reason, 0)
	return nil
}

// MarkClosing records that an exit order has been submitted.
func (l *Ledger) MarkClosing(id string) error {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if p.Status == Closed {
		l.mu.Unlock()
		return nil
	}
	p.Status = Closing
	cp := *p
	l.mu.Unlock()

	l.journalEvent(&cp, "exit submitted", 0)
	return nil
}

// ReopenClosing reverts a Closing position to Open after a failed exit
// order. The protective orders were already canceled before the exit was
// submitted, so the order IDs clear and the position flags Unprotected;
// the monitor re-protects it and re-checks its exit on the next pass.
func (l *Ledger) ReopenClosing(id string) error {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if p.Status != Closing {
		l.mu.Unlock()
		return fmt.Errorf("reopen %s: status %s", id, p.Status)
	}
	p.Status = Open
	p.StopOrderID = ""
	p.TargetOrderID = ""
	p.Unprotected = true
	cp := *p
	l.mu.Unlock()

	l.journalEvent(&cp, "exit failed, reopened", 0)
	return nil
}

// Close finalizes a position and applies realized P&L and the loss-streak
// update to the account state in one step. Idempotent: closing an already
// Closed position is a no-op, so duplicate reconciliation events are safe.
func (l *Ledger) Close(id string, exitPrice float64, reason string) error {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if p.Status == Closed {
		l.mu.Unlock()
		return nil
	}

	now := l.now()
	realized := p.RealizedPL(exitPrice)
	p.Status = Closed
	p.ExitPrice = exitPrice
	p.ExitReason = reason
	p.ClosedAt = now
	p.Unprotected = false
	delete(l.live, p.Instrument)
	cp := *p
	listener := l.listener
	l.mu.Unlock()

	// P&L and the consecutive-loss counter move atomically with the close.
	l.acct.ApplyClose(realized)

	l.journalEvent(&cp, reason, realized)
	if err := l.jrnl.RecordAccount(l.acct.Record(now)); err != nil {
		log.Printf("ledger: journal account: %v", err)
	}

	if listener != nil {
		listener.OnPositionClosed(cp, realized)
	}
	return nil
}

func (l *Ledger) journalEvent(p *Position, reason string, realized float64) {
	if err := l.jrnl.RecordPosition(journal.PositionEvent{
		Time:       l.now(),
		PositionID: p.ID,
		Instrument: p.Instrument,
		Status:     p.Status.String(),
		Direction:  p.Direction.String(),
		Qty:        p.Quantity,
		EntryPrice: p.EntryPrice,
		ExitPrice:  p.ExitPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		RealizedPL: realized,
		Reason:     reason,
	}); err != nil {
		log.Printf("ledger: journal position %s: %v", p.ID, err)
	}
}
