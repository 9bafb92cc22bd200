package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/safety"
)

type nopJournal struct{}

func (nopJournal) RecordPosition(journal.PositionEvent) error { return nil }
func (nopJournal) RecordDenial(journal.Denial) error          { return nil }
func (nopJournal) RecordAccount(journal.AccountRecord) error  { return nil }
func (nopJournal) RecordHalt(string, time.Time) error         { return nil }
func (nopJournal) Close() error                               { return nil }

type fakeGateway struct {
	positions []exchange.ExchangePosition
	fills     []exchange.Fill
	posErr    error
}

func (f *fakeGateway) GetTick(ctx context.Context, instrument string) (market.Tick, error) {
	return market.Tick{}, nil
}

func (f *fakeGateway) GetCandles(ctx context.Context, instrument string, limit int) ([]market.Candle, error) {
	return nil, nil
}

func (f *fakeGateway) GetAccount(ctx context.Context) (exchange.Account, error) {
	return exchange.Account{}, nil
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	return exchange.OrderAck{}, errors.New("not trading")
}

func (f *fakeGateway) CancelOrder(ctx context.Context, instrument, orderID string) error {
	return nil
}

func (f *fakeGateway) GetPositions(ctx context.Context) ([]exchange.ExchangePosition, error) {
	return f.positions, f.posErr
}

func (f *fakeGateway) GetRecentFills(ctx context.Context, instrument string) ([]exchange.Fill, error) {
	return f.fills, nil
}

func fixedVol(v float64) VolatilityFunc {
	return func(context.Context, string) (float64, error) { return v, nil }
}

func testSyncer(t *testing.T, gw *fakeGateway, vol VolatilityFunc) (*Synchronizer, *ledger.Ledger) {
	t.Helper()
	acct := safety.NewAccountState(10000, time.Now().UTC())
	book := ledger.New(acct, nopJournal{})
	return New(gw, book, vol, 2, 2, 0.02, 0.04), book
}

func openLong(t *testing.T, book *ledger.Ledger, id string, qty float64) {
	t.Helper()
	require.NoError(t, book.OpenPending(ledger.Position{
		ID:         id,
		Instrument: "BTCUSDT",
		Direction:  market.Long,
		EntryPrice: 40000,
		Quantity:   qty,
		StopLoss:   39000,
		TakeProfit: 42000,
	}))
	require.NoError(t, book.ConfirmFill(id, 40000, qty))
}

func TestReconcile_AdoptsExchangeOnlyPosition(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{positions: []exchange.ExchangePosition{
		{Instrument: "ETHUSDT", Direction: market.Short, Qty: 2, AvgEntry: 2000},
	}}
	s, book := testSyncer(t, gw, fixedVol(10))

	corrections, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, Adopted, corrections[0].Kind)

	pos, ok := book.Get("ETHUSDT")
	require.True(t, ok)
	assert.True(t, pos.Adopted)
	assert.True(t, pos.Unprotected)
	assert.Equal(t, market.Short, pos.Direction)
	// Stop from volatility: 2000 + 10*2 = 2020; target 2000 - 40 = 1960.
	assert.InDelta(t, 2020.0, pos.StopLoss, 1e-9)
	assert.InDelta(t, 1960.0, pos.TakeProfit, 1e-9)
}

func TestReconcile_AdoptFallsBackWithoutVolatility(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{positions: []exchange.ExchangePosition{
		{Instrument: "BTCUSDT", Direction: market.Long, Qty: 1, AvgEntry: 40000},
	}}
	noVol := func(context.Context, string) (float64, error) { return 0, errors.New("unavailable") }
	s, book := testSyncer(t, gw, noVol)

	_, err := s.Reconcile(context.Background())
	require.NoError(t, err)

	pos, ok := book.Get("BTCUSDT")
	require.True(t, ok)
	// Fallback percentages of entry: 2% stop, 4% target.
	assert.InDelta(t, 39200.0, pos.StopLoss, 1e-9)
	assert.InDelta(t, 41600.0, pos.TakeProfit, 1e-9)
}

func TestReconcile_ClosesExternallyFlattened(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{fills: []exchange.Fill{
		{Instrument: "BTCUSDT", Side: exchange.Buy, Price: 39990, Qty: 0.5},
		{Instrument: "BTCUSDT", Side: exchange.Sell, Price: 41000, Qty: 0.5},
	}}
	s, book := testSyncer(t, gw, fixedVol(10))
	openLong(t, book, "p1", 0.5)

	corrections, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, ExternallyClosed, corrections[0].Kind)

	pos, _ := book.GetByID("p1")
	assert.Equal(t, ledger.Closed, pos.Status)
	assert.Equal(t, "externally closed", pos.ExitReason)
	// Exit price taken from the most recent sell fill.
	assert.InDelta(t, 41000.0, pos.ExitPrice, 1e-9)
}

func TestReconcile_QuantityDrift(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{positions: []exchange.ExchangePosition{
		{Instrument: "BTCUSDT", Direction: market.Long, Qty: 0.3, AvgEntry: 40000},
	}}
	s, book := testSyncer(t, gw, fixedVol(10))
	openLong(t, book, "p1", 0.5)

	corrections, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, QuantityDrift, corrections[0].Kind)

	pos, _ := book.GetByID("p1")
	assert.InDelta(t, 0.3, pos.Quantity, 1e-9)
	// Stops and targets are engine-owned; reconciliation never touches them.
	assert.InDelta(t, 39000.0, pos.StopLoss, 1e-9)
	assert.InDelta(t, 42000.0, pos.TakeProfit, 1e-9)
}

func TestReconcile_MatchingPositionUntouched(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{positions: []exchange.ExchangePosition{
		{Instrument: "BTCUSDT", Direction: market.Long, Qty: 0.5, AvgEntry: 40000},
	}}
	s, book := testSyncer(t, gw, fixedVol(10))
	openLong(t, book, "p1", 0.5)

	corrections, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, corrections)
	assert.Equal(t, 1, book.OpenCount())
}

func TestReconcile_ResolvesPendingEntry(t *testing.T) {
	t.Parallel()

	t.Run("filled on exchange", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{positions: []exchange.ExchangePosition{
			{Instrument: "BTCUSDT", Direction: market.Long, Qty: 0.5, AvgEntry: 40010},
		}}
		s, book := testSyncer(t, gw, fixedVol(10))
		require.NoError(t, book.OpenPending(ledger.Position{
			ID: "p1", Instrument: "BTCUSDT", Direction: market.Long,
			EntryPrice: 40000, Quantity: 0.5, StopLoss: 39000, TakeProfit: 42000,
		}))

		corrections, err := s.Reconcile(context.Background())
		require.NoError(t, err)
		require.Len(t, corrections, 1)
		assert.Equal(t, FillConfirmed, corrections[0].Kind)

		pos, _ := book.GetByID("p1")
		assert.Equal(t, ledger.Open, pos.Status)
		assert.InDelta(t, 40010.0, pos.EntryPrice, 1e-9)
		assert.True(t, pos.Unprotected)
	})

	t.Run("never landed", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{}
		acct := safety.NewAccountState(10000, time.Now().UTC())
		book := ledger.New(acct, nopJournal{})
		s := New(gw, book, fixedVol(10), 2, 2, 0.02, 0.04)
		acct.ApplyClose(-100)
		require.NoError(t, book.OpenPending(ledger.Position{
			ID: "p1", Instrument: "BTCUSDT", Direction: market.Long,
			EntryPrice: 40000, Quantity: 0.5, StopLoss: 39000, TakeProfit: 42000,
		}))

		corrections, err := s.Reconcile(context.Background())
		require.NoError(t, err)
		require.Len(t, corrections, 1)
		assert.Equal(t, EntryVanished, corrections[0].Kind)
		assert.Equal(t, 0, book.OpenCount())

		// An entry that never landed is not a trade: no equity movement,
		// no streak reset.
		snap := acct.Snapshot()
		assert.InDelta(t, 9900.0, snap.Equity, 1e-9)
		assert.Equal(t, 1, snap.ConsecutiveLosses)
	})
}

func TestReconcile_FetchErrorChangesNothing(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{posErr: errors.New("503")}
	s, book := testSyncer(t, gw, fixedVol(10))
	openLong(t, book, "p1", 0.5)

	_, err := s.Reconcile(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, book.OpenCount())
}
