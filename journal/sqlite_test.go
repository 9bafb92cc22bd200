package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *SQLite {
	t.Helper()

	j, err := NewSQLite(filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func event(id, status string, at time.Time) PositionEvent {
	return PositionEvent{
		Time:       at,
		PositionID: id,
		Instrument: "BTCUSDT",
		Status:     status,
		Direction:  "long",
		Qty:        0.5,
		EntryPrice: 40000,
		Reason:     "test",
	}
}

func TestPositionHistory_OrderedByTime(t *testing.T) {
	t.Parallel()

	j := testDB(t)
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordPosition(event("p1", "open", base.Add(time.Minute))))
	require.NoError(t, j.RecordPosition(event("p1", "pending", base)))
	require.NoError(t, j.RecordPosition(event("p1", "closed", base.Add(2*time.Minute))))
	require.NoError(t, j.RecordPosition(event("p2", "pending", base)))

	events, err := j.PositionHistory("p1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "pending", events[0].Status)
	assert.Equal(t, "open", events[1].Status)
	assert.Equal(t, "closed", events[2].Status)
}

func TestListClosedBetween_FiltersStatusAndWindow(t *testing.T) {
	t.Parallel()

	j := testDB(t)
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordPosition(event("p1", "closed", day.Add(10*time.Hour))))
	require.NoError(t, j.RecordPosition(event("p2", "open", day.Add(11*time.Hour))))
	require.NoError(t, j.RecordPosition(event("p3", "closed", day.Add(36*time.Hour)))) // next day

	events, err := j.ListClosedBetween(day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "p1", events[0].PositionID)
}

func TestLastAccount(t *testing.T) {
	t.Parallel()

	j := testDB(t)

	// Empty journal: nil, nil.
	rec, err := j.LastAccount()
	require.NoError(t, err)
	assert.Nil(t, rec)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordAccount(AccountRecord{Time: base, Equity: 9000, DayStart: base}))
	require.NoError(t, j.RecordAccount(AccountRecord{Time: base.Add(time.Hour), Equity: 9500, DayStart: base}))

	rec, err = j.LastAccount()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.InDelta(t, 9500.0, rec.Equity, 1e-9)
}

func TestHaltLifecycle(t *testing.T) {
	t.Parallel()

	j := testDB(t)

	h, err := j.ActiveHalt()
	require.NoError(t, err)
	assert.Nil(t, h)

	at := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	require.NoError(t, j.RecordHalt("daily loss limit", at))

	h, err = j.ActiveHalt()
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "daily loss limit", h.Reason)
	assert.True(t, h.HaltedAt.Equal(at))

	require.NoError(t, j.ClearHalt(at.Add(time.Hour)))

	h, err = j.ActiveHalt()
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestRecordDenial(t *testing.T) {
	t.Parallel()

	j := testDB(t)
	require.NoError(t, j.RecordDenial(Denial{
		Time:       time.Now().UTC(),
		Instrument: "ETHUSDT",
		Code:       "POSITION_LIMIT",
		Reason:     "5 open, max 5",
	}))
}
