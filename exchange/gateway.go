package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/perptrader/market"
)

// ErrTimeout marks an order call whose outcome is unknown. Callers must
// reconcile against the exchange before assuming success or failure.
var ErrTimeout = errors.New("exchange call timed out")

type OrderType string

const (
	Market     OrderType = "MARKET"
	StopMarket OrderType = "STOP_MARKET"
	TakeProfit OrderType = "TAKE_PROFIT_MARKET"
)

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// EntrySide maps a position direction to the order side that opens it.
func EntrySide(d market.Direction) OrderSide {
	if d == market.Short {
		return Sell
	}
	return Buy
}

// ExitSide maps a position direction to the order side that closes it.
func ExitSide(d market.Direction) OrderSide {
	if d == market.Short {
		return Buy
	}
	return Sell
}

type OrderRequest struct {
	Instrument string
	Side       OrderSide
	Qty        float64
	Type       OrderType
	StopPrice  float64 // trigger price for StopMarket / TakeProfit
	ReduceOnly bool
}

type OrderAck struct {
	OrderID    string
	Instrument string
	AvgPrice   float64 // fill price for market orders, 0 for resting orders
	FilledQty  float64
	Time       time.Time
}

type ExchangePosition struct {
	Instrument string
	Direction  market.Direction
	Qty        float64 // always positive; direction carries the sign
	AvgEntry   float64
}

type Fill struct {
	OrderID    string
	Instrument string
	Side       OrderSide
	Price      float64
	Qty        float64
	Time       time.Time
}

type Account struct {
	Equity    float64
	Balance   float64
	Available float64
}

// MarketData is the read-only quote surface of a venue. The paper gateway
// delegates these to a real venue so simulated fills use live prices.
type MarketData interface {
	GetTick(ctx context.Context, instrument string) (market.Tick, error)
	GetCandles(ctx context.Context, instrument string, limit int) ([]market.Candle, error)
}

// Gateway is the full trading surface of a venue.
type Gateway interface {
	MarketData

	GetAccount(ctx context.Context) (Account, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, instrument, orderID string) error
	GetPositions(ctx context.Context) ([]ExchangePosition, error)
	GetRecentFills(ctx context.Context, instrument string) ([]Fill, error)
}
