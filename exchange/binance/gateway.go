// Package binance implements exchange.Gateway on Binance USD-M futures.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/market"
)

const (
	defaultTimeout  = 15 * time.Second
	candleInterval  = "1h"
	recentFillLimit = 20
)

type Gateway struct {
	client  *futures.Client
	timeout time.Duration
}

// NewGateway creates a Binance futures gateway. Empty credentials are fine
// for market-data-only use (paper trading reads public endpoints).
func NewGateway(apiKey, secretKey string) *Gateway {
	return &Gateway{
		client:  futures.NewClient(apiKey, secretKey),
		timeout: defaultTimeout,
	}
}

// call bounds an exchange request and normalizes a deadline expiry into
// exchange.ErrTimeout so callers know the outcome is indeterminate.
func (g *Gateway) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", exchange.ErrTimeout, err)
	}
	return err
}

func (g *Gateway) GetAccount(ctx context.Context) (exchange.Account, error) {
	var acct *futures.Account
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		acct, err = g.client.NewGetAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return exchange.Account{}, fmt.Errorf("get account: %w", err)
	}

	return exchange.Account{
		Equity:    parseFloat(acct.TotalMarginBalance),
		Balance:   parseFloat(acct.TotalWalletBalance),
		Available: parseFloat(acct.AvailableBalance),
	}, nil
}

func (g *Gateway) GetTick(ctx context.Context, instrument string) (market.Tick, error) {
	var books []*futures.BookTicker
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		books, err = g.client.NewListBookTickersService().Symbol(instrument).Do(ctx)
		return err
	})
	if err != nil {
		return market.Tick{}, fmt.Errorf("get tick %s: %w", instrument, err)
	}
	if len(books) == 0 {
		return market.Tick{}, fmt.Errorf("get tick %s: empty book", instrument)
	}

	b := books[0]
	return market.Tick{
		Instrument: instrument,
		Time:       time.Now().UTC(),
		Bid:        parseFloat(b.BidPrice),
		Ask:        parseFloat(b.AskPrice),
	}, nil
}

func (g *Gateway) GetCandles(ctx context.Context, instrument string, limit int) ([]market.Candle, error) {
	var klines []*futures.Kline
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		klines, err = g.client.NewKlinesService().
			Symbol(instrument).
			Interval(candleInterval).
			Limit(limit).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get candles %s: %w", instrument, err)
	}

	candles := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, market.Candle{
			Open:   parseFloat(k.Open),
			High:   parseFloat(k.High),
			Low:    parseFloat(k.Low),
			Close:  parseFloat(k.Close),
			Volume: parseFloat(k.Volume),
			Time:   time.UnixMilli(k.OpenTime).UTC(),
		})
	}
	return candles, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	svc := g.client.NewCreateOrderService().
		Symbol(req.Instrument).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type))

	switch req.Type {
	case exchange.Market:
		svc = svc.Quantity(formatQty(req.Qty)).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT)
		if req.ReduceOnly {
			svc = svc.ReduceOnly(true)
		}
	case exchange.StopMarket, exchange.TakeProfit:
		// Protective orders close the whole position at trigger, priced off
		// the contract price rather than the mark price.
		svc = svc.StopPrice(formatQty(req.StopPrice)).
			WorkingType(futures.WorkingTypeContractPrice).
			ClosePosition(true)
	default:
		return exchange.OrderAck{}, fmt.Errorf("place order: unsupported type %q", req.Type)
	}

	var resp *futures.CreateOrderResponse
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return exchange.OrderAck{}, fmt.Errorf("place %s %s %s: %w", req.Type, req.Side, req.Instrument, err)
	}

	return exchange.OrderAck{
		OrderID:    strconv.FormatInt(resp.OrderID, 10),
		Instrument: resp.Symbol,
		AvgPrice:   parseFloat(resp.AvgPrice),
		FilledQty:  parseFloat(resp.ExecutedQuantity),
		Time:       time.UnixMilli(resp.UpdateTime).UTC(),
	}, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, instrument, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("cancel order: bad id %q: %w", orderID, err)
	}

	return g.call(ctx, func(ctx context.Context) error {
		_, err := g.client.NewCancelOrderService().
			Symbol(instrument).
			OrderID(id).
			Do(ctx)
		return err
	})
}

func (g *Gateway) GetPositions(ctx context.Context) ([]exchange.ExchangePosition, error) {
	var risks []*futures.PositionRisk
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		risks, err = g.client.NewGetPositionRiskService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	var out []exchange.ExchangePosition
	for _, p := range risks {
		amt := parseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}

		dir := market.Long
		if amt < 0 {
			dir = market.Short
			amt = -amt
		}
		out = append(out, exchange.ExchangePosition{
			Instrument: p.Symbol,
			Direction:  dir,
			Qty:        amt,
			AvgEntry:   parseFloat(p.EntryPrice),
		})
	}
	return out, nil
}

func (g *Gateway) GetRecentFills(ctx context.Context, instrument string) ([]exchange.Fill, error) {
	var trades []*futures.AccountTrade
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		trades, err = g.client.NewListAccountTradeService().
			Symbol(instrument).
			Limit(recentFillLimit).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get fills %s: %w", instrument, err)
	}

	fills := make([]exchange.Fill, 0, len(trades))
	for _, t := range trades {
		fills = append(fills, exchange.Fill{
			OrderID:    strconv.FormatInt(t.OrderID, 10),
			Instrument: t.Symbol,
			Side:       exchange.OrderSide(t.Side),
			Price:      parseFloat(t.Price),
			Qty:        parseFloat(t.Quantity),
			Time:       time.UnixMilli(t.Time).UTC(),
		})
	}
	return fills, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatQty(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
