package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/config"
	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/market"
)

type nopJournal struct{}

func (nopJournal) RecordPosition(journal.PositionEvent) error { return nil }
func (nopJournal) RecordDenial(journal.Denial) error          { return nil }
func (nopJournal) RecordAccount(journal.AccountRecord) error  { return nil }
func (nopJournal) RecordHalt(string, time.Time) error         { return nil }
func (nopJournal) Close() error                               { return nil }

type fakeGateway struct {
	mu      sync.Mutex
	candles []market.Candle
	tick    market.Tick
	orders  []exchange.OrderRequest
	nextID  int
}

func (f *fakeGateway) GetTick(ctx context.Context, instrument string) (market.Tick, error) {
	return f.tick, nil
}

func (f *fakeGateway) GetCandles(ctx context.Context, instrument string, limit int) ([]market.Candle, error) {
	return f.candles, nil
}

func (f *fakeGateway) GetAccount(ctx context.Context) (exchange.Account, error) {
	return exchange.Account{Equity: 10000, Balance: 10000}, nil
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	f.nextID++
	ack := exchange.OrderAck{OrderID: "o", Instrument: req.Instrument, Time: time.Now().UTC()}
	if req.Type == exchange.Market {
		ack.AvgPrice = f.tick.Ask
		ack.FilledQty = req.Qty
	}
	return ack, nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, instrument, orderID string) error {
	return nil
}

func (f *fakeGateway) GetPositions(ctx context.Context) ([]exchange.ExchangePosition, error) {
	return nil, nil
}

func (f *fakeGateway) GetRecentFills(ctx context.Context, instrument string) ([]exchange.Fill, error) {
	return nil, nil
}

func (f *fakeGateway) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// risingCandles is a net uptrend with real ranges, so EMA sits below the
// last close and ATR is positive.
func risingCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	price := 100.0
	for i := range out {
		if i%2 == 0 {
			price += 2
		} else {
			price -= 1
		}
		out[i] = market.Candle{Open: price - 1, High: price + 2, Low: price - 2, Close: price}
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine.Instruments = []string{"BTCUSDT"}
	cfg.Engine.ATRPeriod = 3
	cfg.Engine.CandleLimit = 20
	// Signal gates wide open: direction comes purely from the trend filter.
	cfg.Signal.EMAPeriod = 5
	cfg.Signal.RSIPeriod = 5
	cfg.Signal.RSILong = 100
	cfg.Signal.RSIShort = 0
	return cfg
}

func testEngine(t *testing.T) (*Engine, *fakeGateway) {
	t.Helper()

	candles := risingCandles(20)
	last := candles[len(candles)-1].Close
	gw := &fakeGateway{
		candles: candles,
		tick:    market.Tick{Instrument: "BTCUSDT", Bid: last - 0.05, Ask: last + 0.05},
	}

	e, err := New(testConfig(), gw, nopJournal{})
	require.NoError(t, err)
	return e, gw
}

func TestCycle_OpensPositionOnSignal(t *testing.T) {
	t.Parallel()

	e, gw := testEngine(t)
	e.cycle(context.Background())

	assert.Equal(t, 1, e.book.OpenCount())
	pos, ok := e.book.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, ledger.Open, pos.Status)
	assert.Equal(t, market.Long, pos.Direction)
	assert.False(t, pos.Unprotected)
	assert.Less(t, pos.StopLoss, pos.EntryPrice)
	assert.Greater(t, pos.TakeProfit, pos.EntryPrice)

	// Entry plus stop plus target.
	assert.Equal(t, 3, gw.orderCount())
}

func TestCycle_SkipsInstrumentWithLivePosition(t *testing.T) {
	t.Parallel()

	e, gw := testEngine(t)
	e.cycle(context.Background())
	require.Equal(t, 1, e.book.OpenCount())
	placed := gw.orderCount()

	// Second cycle: same signal, but the slot is taken.
	e.cycle(context.Background())
	assert.Equal(t, 1, e.book.OpenCount())
	assert.Equal(t, placed, gw.orderCount())
}

func TestCycle_HaltBlocksEntries(t *testing.T) {
	t.Parallel()

	e, gw := testEngine(t)
	e.halt.Halt("manual", time.Now().UTC())

	e.cycle(context.Background())
	assert.Equal(t, 0, e.book.OpenCount())
	assert.Equal(t, 0, gw.orderCount())
	assert.Equal(t, Halted, e.State())
}

func TestMonitorPass_TrailsAfterRally(t *testing.T) {
	t.Parallel()

	e, gw := testEngine(t)
	e.cycle(context.Background())
	pos, ok := e.book.Get("BTCUSDT")
	require.True(t, ok)
	stopBefore := pos.StopLoss

	// Price moves up, short of the take profit; the next monitor pass must
	// tighten the stop without exiting.
	gw.mu.Lock()
	gw.tick = market.Tick{Instrument: "BTCUSDT", Bid: pos.EntryPrice + 10, Ask: pos.EntryPrice + 10.1}
	gw.mu.Unlock()

	e.monitorPass(context.Background())

	after, _ := e.book.Get("BTCUSDT")
	assert.Greater(t, after.StopLoss, stopBefore)
}

func TestParseDayBoundary(t *testing.T) {
	t.Parallel()

	d, err := parseDayBoundary("08:30")
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour+30*time.Minute, d)

	_, err = parseDayBoundary("8am")
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "halted", Halted.String())
	assert.Equal(t, "unknown", State(99).String())
}
