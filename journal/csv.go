package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSVJournal appends position events and governor denials to flat files.
// Halts and account snapshots fold into the same two streams; there is no
// recovery query surface, so restarts rebuild purely from the exchange.
type CSVJournal struct {
	events  *csv.Writer
	denials *csv.Writer
	ef, df  *os.File
}

func NewCSV(eventsPath, denialsPath string) (*CSVJournal, error) {
	ef, err := os.Create(eventsPath)
	if err != nil {
		return nil, err
	}
	df, err := os.Create(denialsPath)
	if err != nil {
		return nil, err
	}

	ew := csv.NewWriter(ef)
	dw := csv.NewWriter(df)

	if err := ew.Write([]string{"time", "position_id", "instrument", "status", "direction", "qty", "entry_price", "exit_price", "stop_loss", "take_profit", "realized_pl", "reason"}); err != nil {
		return nil, err
	}
	if err := dw.Write([]string{"time", "instrument", "code", "reason", "halted"}); err != nil {
		return nil, err
	}

	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}
	dw.Flush()
	if err := dw.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{ew, dw, ef, df}, nil
}

func (j *CSVJournal) RecordPosition(e PositionEvent) error {
	err := j.events.Write([]string{
		e.Time.Format(time.RFC3339),
		e.PositionID,
		e.Instrument,
		e.Status,
		e.Direction,
		f(e.Qty),
		f(e.EntryPrice),
		f(e.ExitPrice),
		f(e.StopLoss),
		f(e.TakeProfit),
		f(e.RealizedPL),
		e.Reason,
	})
	if err != nil {
		return err
	}
	j.events.Flush()
	return j.events.Error()
}

func (j *CSVJournal) RecordDenial(d Denial) error {
	err := j.denials.Write([]string{
		d.Time.Format(time.RFC3339),
		d.Instrument,
		d.Code,
		d.Reason,
		strconv.FormatBool(d.Halted),
	})
	if err != nil {
		return err
	}
	j.denials.Flush()
	return j.denials.Error()
}

func (j *CSVJournal) RecordAccount(a AccountRecord) error {
	// Account snapshots ride the events stream with a synthetic status.
	err := j.events.Write([]string{
		a.Time.Format(time.RFC3339),
		"", "", "account", "",
		f(a.Equity),
		f(a.DayStartEquity),
		f(a.DailyRealizedPL),
		strconv.Itoa(a.ConsecutiveLosses),
		"", "", "",
	})
	if err != nil {
		return err
	}
	j.events.Flush()
	return j.events.Error()
}

func (j *CSVJournal) RecordHalt(reason string, at time.Time) error {
	return j.RecordDenial(Denial{Time: at, Code: "HALT", Reason: reason, Halted: true})
}

func (j *CSVJournal) Close() error {
	j.events.Flush()
	if err := j.events.Error(); err != nil {
		return err
	}
	j.denials.Flush()
	if err := j.denials.Error(); err != nil {
		return err
	}

	if err := j.ef.Close(); err != nil {
		return err
	}
	return j.df.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
