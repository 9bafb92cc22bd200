// Package paper implements exchange.Gateway without sending anything to a
// venue. Market data is delegated to a real (public) feed so simulated fills
// happen at live prices; account state, positions, and orders live in memory.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/id"
)

type position struct {
	direction market.Direction
	qty       float64
	avgEntry  float64
}

type restingOrder struct {
	id         string
	instrument string
	side       exchange.OrderSide
	orderType  exchange.OrderType
	stopPrice  float64
}

type Gateway struct {
	md exchange.MarketData

	mu        sync.Mutex
	balance   float64
	positions map[string]*position
	orders    map[string]restingOrder // resting protective orders by id
	fills     []exchange.Fill
}

func New(md exchange.MarketData, startingBalance float64) *Gateway {
	return &Gateway{
		md:        md,
		balance:   startingBalance,
		positions: make(map[string]*position),
		orders:    make(map[string]restingOrder),
	}
}

func (g *Gateway) GetTick(ctx context.Context, instrument string) (market.Tick, error) {
	return g.md.GetTick(ctx, instrument)
}

func (g *Gateway) GetCandles(ctx context.Context, instrument string, limit int) ([]market.Candle, error) {
	return g.md.GetCandles(ctx, instrument, limit)
}

// GetAccount values open positions at the current tick, mirroring how a
// venue reports margin-balance equity.
func (g *Gateway) GetAccount(ctx context.Context) (exchange.Account, error) {
	g.mu.Lock()
	open := make(map[string]position, len(g.positions))
	for instr, p := range g.positions {
		open[instr] = *p
	}
	balance := g.balance
	g.mu.Unlock()

	unrealized := 0.0
	for instr, p := range open {
		tick, err := g.md.GetTick(ctx, instr)
		if err != nil {
			continue // value at entry when the feed is unavailable
		}
		unrealized += p.direction.Sign() * (tick.Mark(p.direction) - p.avgEntry) * p.qty
	}

	equity := balance + unrealized
	return exchange.Account{Equity: equity, Balance: balance, Available: equity}, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	switch req.Type {
	case exchange.Market:
		return g.fillMarket(ctx, req)
	case exchange.StopMarket, exchange.TakeProfit:
		// Resting protective orders are recorded but never self-trigger; the
		// engine's monitor pass does exit checks against live ticks, exactly
		// as it would have to on a venue without native stop orders.
		ord := restingOrder{
			id:         id.New(),
			instrument: req.Instrument,
			side:       req.Side,
			orderType:  req.Type,
			stopPrice:  req.StopPrice,
		}
		g.mu.Lock()
		g.orders[ord.id] = ord
		g.mu.Unlock()
		return exchange.OrderAck{
			OrderID:    ord.id,
			Instrument: req.Instrument,
			Time:       time.Now().UTC(),
		}, nil
	default:
		return exchange.OrderAck{}, fmt.Errorf("paper: unsupported order type %q", req.Type)
	}
}

func (g *Gateway) fillMarket(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	tick, err := g.md.GetTick(ctx, req.Instrument)
	if err != nil {
		return exchange.OrderAck{}, fmt.Errorf("paper: no price for %s: %w", req.Instrument, err)
	}

	// Fill at the far side of the book like a taker would.
	fillPrice := tick.Ask
	if req.Side == exchange.Sell {
		fillPrice = tick.Bid
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.positions[req.Instrument]
	if req.ReduceOnly {
		if p == nil {
			return exchange.OrderAck{}, fmt.Errorf("paper: reduce-only with no position on %s", req.Instrument)
		}
		qty := req.Qty
		if qty > p.qty {
			qty = p.qty
		}
		g.balance += p.direction.Sign() * (fillPrice - p.avgEntry) * qty
		p.qty -= qty
		if p.qty <= 0 {
			delete(g.positions, req.Instrument)
		}
	} else {
		dir := market.Long
		if req.Side == exchange.Sell {
			dir = market.Short
		}
		if p != nil && p.direction != dir {
			return exchange.OrderAck{}, fmt.Errorf("paper: opposing position already open on %s", req.Instrument)
		}
		if p == nil {
			g.positions[req.Instrument] = &position{direction: dir, qty: req.Qty, avgEntry: fillPrice}
		} else {
			total := p.qty + req.Qty
			p.avgEntry = (p.avgEntry*p.qty + fillPrice*req.Qty) / total
			p.qty = total
		}
	}

	ack := exchange.OrderAck{
		OrderID:    id.New(),
		Instrument: req.Instrument,
		AvgPrice:   fillPrice,
		FilledQty:  req.Qty,
		Time:       time.Now().UTC(),
	}
	g.fills = append(g.fills, exchange.Fill{
		OrderID:    ack.OrderID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Price:      fillPrice,
		Qty:        req.Qty,
		Time:       ack.Time,
	})
	return ack, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, instrument, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.orders[orderID]; !ok {
		return fmt.Errorf("paper: order %s not found", orderID)
	}
	delete(g.orders, orderID)
	return nil
}

func (g *Gateway) GetPositions(ctx context.Context) ([]exchange.ExchangePosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []exchange.ExchangePosition
	for instr, p := range g.positions {
		out = append(out, exchange.ExchangePosition{
			Instrument: instr,
			Direction:  p.direction,
			Qty:        p.qty,
			AvgEntry:   p.avgEntry,
		})
	}
	return out, nil
}

func (g *Gateway) GetRecentFills(ctx context.Context, instrument string) ([]exchange.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []exchange.Fill
	for _, f := range g.fills {
		if f.Instrument == instrument {
			out = append(out, f)
		}
	}
	return out, nil
}
