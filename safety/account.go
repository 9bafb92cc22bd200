package safety

import (
	"sync"
	"time"

	"github.com/rustyeddy/perptrader/journal"
)

// AccountState is the process-wide equity and P&L record. It is guarded and
// passed by handle; only the governor and the ledger's close path mutate it.
type AccountState struct {
	mu                sync.Mutex
	equity            float64
	startingEquity    float64
	dayStartEquity    float64
	dailyRealizedPL   float64
	consecutiveLosses int
	dayStart          time.Time
}

// AccountSnapshot is an immutable copy for checks and journaling.
type AccountSnapshot struct {
	Equity            float64
	StartingEquity    float64
	DayStartEquity    float64
	DailyRealizedPL   float64
	ConsecutiveLosses int
	DayStart          time.Time
}

func NewAccountState(startingEquity float64, now time.Time) *AccountState {
	return &AccountState{
		equity:         startingEquity,
		startingEquity: startingEquity,
		dayStartEquity: startingEquity,
		dayStart:       now.UTC(),
	}
}

// Restore rebuilds the state from the last persisted record after a restart.
func Restore(rec *journal.AccountRecord) *AccountState {
	return &AccountState{
		equity:            rec.Equity,
		startingEquity:    rec.StartingEquity,
		dayStartEquity:    rec.DayStartEquity,
		dailyRealizedPL:   rec.DailyRealizedPL,
		consecutiveLosses: rec.ConsecutiveLosses,
		dayStart:          rec.DayStart,
	}
}

// RestoreRecord rebuilds an existing state in place, for engines whose
// account handle is already shared with other components at boot time.
func (a *AccountState) RestoreRecord(rec *journal.AccountRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.equity = rec.Equity
	a.startingEquity = rec.StartingEquity
	a.dayStartEquity = rec.DayStartEquity
	a.dailyRealizedPL = rec.DailyRealizedPL
	a.consecutiveLosses = rec.ConsecutiveLosses
	a.dayStart = rec.DayStart
}

func (a *AccountState) Snapshot() AccountSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *AccountState) snapshotLocked() AccountSnapshot {
	return AccountSnapshot{
		Equity:            a.equity,
		StartingEquity:    a.startingEquity,
		DayStartEquity:    a.dayStartEquity,
		DailyRealizedPL:   a.dailyRealizedPL,
		ConsecutiveLosses: a.consecutiveLosses,
		DayStart:          a.dayStart,
	}
}

// SetEquity refreshes equity from the exchange's account report.
func (a *AccountState) SetEquity(equity float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.equity = equity
}

// ApplyClose records a realized P&L in the same critical section as the
// loss-streak bookkeeping, so a snapshot never sees one without the other.
func (a *AccountState) ApplyClose(realized float64) AccountSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.equity += realized
	a.dailyRealizedPL += realized
	// Only a winning close resets the streak; a flat close (unknown exit
	// price, scratch trade) leaves it alone.
	if realized < 0 {
		a.consecutiveLosses++
	} else if realized > 0 {
		a.consecutiveLosses = 0
	}
	return a.snapshotLocked()
}

// ResetLossStreak clears the consecutive-loss counter (cooldown expiry).
func (a *AccountState) ResetLossStreak() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.consecutiveLosses = 0
}

// MaybeRollover advances the trading day when now has crossed the
// configured day boundary. Daily P&L resets; a halt never does.
// Returns true when a rollover happened.
func (a *AccountState) MaybeRollover(now time.Time, boundary time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now = now.UTC()
	dayStart := dayStartFor(now, boundary)
	if !dayStart.After(a.dayStart) {
		return false
	}

	a.dayStart = dayStart
	a.dailyRealizedPL = 0
	a.dayStartEquity = a.equity
	return true
}

// dayStartFor returns the most recent day boundary at or before now.
func dayStartFor(now time.Time, boundary time.Duration) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := midnight.Add(boundary)
	if start.After(now) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// Record converts the current state into a journal row.
func (a *AccountState) Record(now time.Time) journal.AccountRecord {
	s := a.Snapshot()
	return journal.AccountRecord{
		Time:              now.UTC(),
		Equity:            s.Equity,
		StartingEquity:    s.StartingEquity,
		DayStartEquity:    s.DayStartEquity,
		DailyRealizedPL:   s.DailyRealizedPL,
		ConsecutiveLosses: s.ConsecutiveLosses,
		DayStart:          s.DayStart,
	}
}
