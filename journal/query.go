package journal

import (
	"database/sql"
	"time"
)

// LastAccount returns the most recently persisted account snapshot, or nil
// when the journal is empty (first run).
func (j *SQLite) LastAccount() (*AccountRecord, error) {
	row := j.db.QueryRow(`
		SELECT time, equity, starting_equity, day_start_equity, daily_realized_pl, consecutive_losses, day_start
		FROM account
		ORDER BY time DESC
		LIMIT 1`)

	var a AccountRecord
	err := row.Scan(&a.Time, &a.Equity, &a.StartingEquity, &a.DayStartEquity,
		&a.DailyRealizedPL, &a.ConsecutiveLosses, &a.DayStart)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ActiveHalt returns the live halt row, or nil when trading is not halted.
func (j *SQLite) ActiveHalt() (*HaltRecord, error) {
	row := j.db.QueryRow(`
		SELECT halted_at, reason
		FROM halts
		WHERE cleared_at IS NULL
		ORDER BY halted_at DESC
		LIMIT 1`)

	var h HaltRecord
	err := row.Scan(&h.HaltedAt, &h.Reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// PositionHistory returns every recorded transition for a position, oldest
// first.
func (j *SQLite) PositionHistory(positionID string) ([]PositionEvent, error) {
	rows, err := j.db.Query(`
		SELECT time, position_id, instrument, status, direction, qty, entry_price, exit_price, stop_loss, take_profit, realized_pl, reason
		FROM position_events
		WHERE position_id = ?
		ORDER BY time ASC`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListClosedBetween returns close transitions within [start, end).
func (j *SQLite) ListClosedBetween(start, end time.Time) ([]PositionEvent, error) {
	rows, err := j.db.Query(`
		SELECT time, position_id, instrument, status, direction, qty, entry_price, exit_price, stop_loss, take_profit, realized_pl, reason
		FROM position_events
		WHERE status = 'closed' AND time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]PositionEvent, error) {
	var out []PositionEvent
	for rows.Next() {
		var e PositionEvent
		if err := rows.Scan(
			&e.Time, &e.PositionID, &e.Instrument, &e.Status, &e.Direction,
			&e.Qty, &e.EntryPrice, &e.ExitPrice, &e.StopLoss, &e.TakeProfit,
			&e.RealizedPL, &e.Reason,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
