package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournal_WritesEventsAndDenials(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.csv")
	denialsPath := filepath.Join(dir, "denials.csv")

	j, err := NewCSV(eventsPath, denialsPath)
	require.NoError(t, err)

	at := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordPosition(PositionEvent{
		Time:       at,
		PositionID: "p1",
		Instrument: "BTCUSDT",
		Status:     "closed",
		Direction:  "long",
		Qty:        0.5,
		EntryPrice: 40000,
		ExitPrice:  41000,
		RealizedPL: 500,
		Reason:     "take profit",
	}))
	require.NoError(t, j.RecordDenial(Denial{
		Time: at, Instrument: "ETHUSDT", Code: "COOLING_OFF", Reason: "3 losses",
	}))
	require.NoError(t, j.RecordHalt("daily loss limit", at))
	require.NoError(t, j.Close())

	events := readCSV(t, eventsPath)
	require.Len(t, events, 2) // header + one event
	assert.Equal(t, "position_id", events[0][1])
	assert.Equal(t, "p1", events[1][1])
	assert.Equal(t, "closed", events[1][3])
	assert.Equal(t, "take profit", events[1][11])

	denials := readCSV(t, denialsPath)
	require.Len(t, denials, 3) // header + denial + halt
	assert.Equal(t, "COOLING_OFF", denials[1][2])
	assert.Equal(t, "HALT", denials[2][2])
	assert.Equal(t, "true", denials[2][4])
}
