package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordPosition(e PositionEvent) error {
	_, err := j.db.Exec(`
		INSERT INTO position_events
		(time, position_id, instrument, status, direction, qty, entry_price, exit_price, stop_loss, take_profit, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time, e.PositionID, e.Instrument, e.Status, e.Direction,
		e.Qty, e.EntryPrice, e.ExitPrice, e.StopLoss, e.TakeProfit,
		e.RealizedPL, e.Reason,
	)
	return err
}

func (j *SQLite) RecordDenial(d Denial) error {
	_, err := j.db.Exec(`
		INSERT INTO denials (time, instrument, code, reason, halted)
		VALUES (?, ?, ?, ?, ?)`,
		d.Time, d.Instrument, d.Code, d.Reason, d.Halted,
	)
	return err
}

func (j *SQLite) RecordAccount(a AccountRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO account
		(time, equity, starting_equity, day_start_equity, daily_realized_pl, consecutive_losses, day_start)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Time, a.Equity, a.StartingEquity, a.DayStartEquity,
		a.DailyRealizedPL, a.ConsecutiveLosses, a.DayStart,
	)
	return err
}

func (j *SQLite) RecordHalt(reason string, at time.Time) error {
	_, err := j.db.Exec(`INSERT INTO halts (halted_at, reason) VALUES (?, ?)`, at, reason)
	return err
}

// ClearHalt closes out any active halt rows. Clearing is an operator action;
// the engine never calls this.
func (j *SQLite) ClearHalt(at time.Time) error {
	_, err := j.db.Exec(`UPDATE halts SET cleared_at = ? WHERE cleared_at IS NULL`, at)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
