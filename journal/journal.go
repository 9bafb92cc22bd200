// Package journal is the append-only persistence sink: every position
// transition and every governor denial or halt is recorded for audit and
// crash recovery.
package journal

import "time"

// PositionEvent is one transition in a position's lifecycle.
type PositionEvent struct {
	Time       time.Time
	PositionID string
	Instrument string
	Status     string // pending | open | closing | closed
	Direction  string
	Qty        float64
	EntryPrice float64
	ExitPrice  float64
	StopLoss   float64
	TakeProfit float64
	RealizedPL float64
	Reason     string
}

// Denial is a governor pre-trade rejection; Halted marks the ones that
// latched the halt state.
type Denial struct {
	Time       time.Time
	Instrument string
	Code       string
	Reason     string
	Halted     bool
}

// AccountRecord is a snapshot of the guarded account state, written after
// every close so a restart can resume P&L tracking mid-day.
type AccountRecord struct {
	Time              time.Time
	Equity            float64
	StartingEquity    float64
	DayStartEquity    float64
	DailyRealizedPL   float64
	ConsecutiveLosses int
	DayStart          time.Time
}

// HaltRecord is a persisted halt; ClearedAt is nil while the halt is active.
type HaltRecord struct {
	HaltedAt  time.Time
	Reason    string
	ClearedAt *time.Time
}

type Journal interface {
	RecordPosition(PositionEvent) error
	RecordDenial(Denial) error
	RecordAccount(AccountRecord) error
	RecordHalt(reason string, at time.Time) error
	Close() error
}

// Store adds the recovery and CLI queries on top of the sink. Only the
// SQLite journal implements it; CSV mode trades queryability for grep.
type Store interface {
	Journal

	LastAccount() (*AccountRecord, error)
	ActiveHalt() (*HaltRecord, error)
	ClearHalt(at time.Time) error
	PositionHistory(positionID string) ([]PositionEvent, error)
	ListClosedBetween(start, end time.Time) ([]PositionEvent, error)
}
