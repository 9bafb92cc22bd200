// Package engine runs the trading loop: periodic evaluation cycles,
// exchange reconciliation, and a fast monitor pass over live positions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rustyeddy/perptrader/config"
	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/executor"
	"github.com/rustyeddy/perptrader/indicators"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/risk"
	"github.com/rustyeddy/perptrader/safety"
	"github.com/rustyeddy/perptrader/signal"
	"github.com/rustyeddy/perptrader/syncer"
)

type State int32

const (
	Idle State = iota
	Syncing
	Evaluating
	Monitoring
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case Evaluating:
		return "evaluating"
	case Monitoring:
		return "monitoring"
	case Halted:
		return "halted"
	}
	return "unknown"
}

type Engine struct {
	cfg  *config.Config
	gw   exchange.Gateway
	book *ledger.Ledger
	acct *safety.AccountState
	halt *safety.HaltState
	gov  *safety.Governor
	exec *executor.Executor
	sync *syncer.Synchronizer
	vol  *indicators.ATRProvider
	src  signal.Source
	szr  risk.Sizer

	// store is non-nil only for journal backends that support recovery
	// queries; without it a restart begins a fresh account day.
	store journal.Store

	dayBoundary time.Duration
	state       atomic.Int32
}

// New wires the engine from configuration and a gateway. The journal may
// optionally implement journal.Store, which enables crash recovery of
// account state and halts.
func New(cfg *config.Config, gw exchange.Gateway, jrnl journal.Journal) (*Engine, error) {
	boundary, err := parseDayBoundary(cfg.Safety.DayBoundary)
	if err != nil {
		return nil, err
	}

	acct := safety.NewAccountState(cfg.Account.StartingEquity, time.Now().UTC())
	halt := safety.NewHaltState()
	gov := safety.NewGovernor(safety.Config{
		EquityKillSwitch:     cfg.Safety.EquityKillSwitch,
		DailyLossLimitPct:    cfg.Safety.DailyLossLimitPct,
		MaxOpenTrades:        cfg.Safety.MaxOpenTrades,
		ConsecutiveLossLimit: cfg.Safety.ConsecutiveLossLimit,
		Cooldown:             cfg.CooldownPeriod(),
		DayBoundary:          boundary,
	}, acct, halt, jrnl)

	book := ledger.New(acct, jrnl)
	book.SetCloseListener(ledger.CloseListenerFunc(func(ledger.Position, float64) {
		gov.PostTradeCheck()
	}))

	vol := indicators.NewATRProvider(gw, cfg.Engine.ATRPeriod)
	exec := executor.New(gw, book, cfg.Risk.TrailingSLMult)
	sync := syncer.New(gw, book, vol.Measure,
		cfg.Risk.StopLossMultiplier, cfg.Risk.RewardMultiple,
		cfg.Sync.DefaultStopPct, cfg.Sync.DefaultTargetPct)

	e := &Engine{
		cfg:  cfg,
		gw:   gw,
		book: book,
		acct: acct,
		halt: halt,
		gov:  gov,
		exec: exec,
		sync: sync,
		vol:  vol,
		src: signal.NewEMARSI(&signal.EMARSIConfig{
			EMAPeriod: cfg.Signal.EMAPeriod,
			RSIPeriod: cfg.Signal.RSIPeriod,
			RSILong:   cfg.Signal.RSILong,
			RSIShort:  cfg.Signal.RSIShort,
		}),
		szr: risk.Sizer{
			RiskPerTradePct:    cfg.Risk.RiskPerTradePct,
			StopLossMultiplier: cfg.Risk.StopLossMultiplier,
			RewardMultiple:     cfg.Risk.RewardMultiple,
			MinOrderSize:       cfg.Risk.MinOrderSize,
			MaxNotional:        cfg.Risk.MaxNotional,
			SizeStep:           cfg.Risk.MinOrderSize,
		},
		dayBoundary: boundary,
	}
	if store, ok := jrnl.(journal.Store); ok {
		e.store = store
	}
	return e, nil
}

func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// Run boots the engine, then drives the three schedules until the context
// is canceled. It blocks, and on shutdown waits for in-flight orders to
// drain before returning.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.boot(ctx); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	var wg sync.WaitGroup
	for _, sched := range []struct {
		period time.Duration
		pass   func(context.Context)
	}{
		{e.cfg.CyclePeriod(), e.cycle},
		{e.cfg.SyncPeriod(), e.syncPass},
		{e.cfg.MonitorPeriod(), e.monitorPass},
	} {
		wg.Add(1)
		go func(period time.Duration, pass func(context.Context)) {
			defer wg.Done()
			tick := time.NewTicker(period)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-tick.C:
					pass(ctx)
				}
			}
		}(sched.period, sched.pass)
	}

	wg.Wait()
	e.exec.Wait()
	log.Println("engine: stopped")
	return nil
}

// boot restores persisted state and reconciles against the exchange before
// any trading decision is made.
func (e *Engine) boot(ctx context.Context) error {
	if e.store != nil {
		if rec, err := e.store.LastAccount(); err != nil {
			return fmt.Errorf("restore account: %w", err)
		} else if rec != nil {
			e.acct.RestoreRecord(rec)
			e.acct.MaybeRollover(time.Now().UTC(), e.dayBoundary)
			log.Printf("engine: restored account equity=%.2f dailyPL=%.2f", rec.Equity, rec.DailyRealizedPL)
		}
		if h, err := e.store.ActiveHalt(); err != nil {
			return fmt.Errorf("restore halt: %w", err)
		} else if h != nil {
			e.halt.Halt(h.Reason, h.HaltedAt)
			log.Printf("engine: halt active since %s: %s", h.HaltedAt.Format(time.RFC3339), h.Reason)
		}
	}

	e.refreshEquity(ctx)

	if _, err := e.sync.Reconcile(ctx); err != nil {
		return fmt.Errorf("initial reconcile: %w", err)
	}

	mode := "live"
	if e.cfg.Engine.PaperTrading {
		mode = "paper"
	}
	log.Printf("engine: started mode=%s instruments=%v", mode, e.cfg.Engine.Instruments)
	return nil
}

// cycle is the slow evaluation schedule: reconcile, then look for an entry
// on each instrument without a live position. A halt latching mid-cycle
// abandons the rest of the cycle.
func (e *Engine) cycle(ctx context.Context) {
	if e.halt.Halted() {
		e.setState(Halted)
		return
	}
	e.setState(Evaluating)
	defer e.setState(Idle)

	e.acct.MaybeRollover(time.Now().UTC(), e.dayBoundary)
	e.refreshEquity(ctx)

	if _, err := e.sync.Reconcile(ctx); err != nil {
		log.Printf("engine: cycle reconcile: %v", err)
		return
	}

	for _, instrument := range e.cfg.Engine.Instruments {
		if e.halt.Halted() {
			reason, _ := e.halt.Reason()
			log.Printf("engine: cycle abandoned, halted: %s", reason)
			return
		}
		if _, live := e.book.Get(instrument); live {
			continue
		}
		if err := e.evaluate(ctx, instrument); err != nil {
			log.Printf("engine: evaluate %s: %v", instrument, err)
		}
	}
}

func (e *Engine) evaluate(ctx context.Context, instrument string) error {
	candles, err := e.gw.GetCandles(ctx, instrument, e.cfg.Engine.CandleLimit)
	if err != nil {
		return fmt.Errorf("candles: %w", err)
	}

	sig, err := e.src.Evaluate(ctx, instrument, candles)
	if err != nil {
		return fmt.Errorf("signal: %w", err)
	}
	if sig.Flat() {
		return nil
	}

	vol, err := e.vol.Measure(ctx, instrument)
	if err != nil {
		return fmt.Errorf("volatility: %w", err)
	}
	tick, err := e.gw.GetTick(ctx, instrument)
	if err != nil {
		return fmt.Errorf("tick: %w", err)
	}

	dec, err := e.szr.Size(sig, e.acct.Snapshot().Equity, tick.Mid(), vol)
	if err != nil {
		var rej *risk.Rejection
		if errors.As(err, &rej) {
			log.Printf("engine: %s sized out: %s", instrument, rej)
			return nil
		}
		return fmt.Errorf("size: %w", err)
	}

	if denial := e.gov.PreTradeCheck(instrument, e.book.OpenCount()); denial != nil {
		log.Printf("engine: %s denied: %s", instrument, denial)
		return nil
	}

	posID, err := e.exec.Execute(ctx, sig, dec)
	if errors.Is(err, executor.ErrEntryUnconfirmed) {
		log.Printf("engine: %s entry unconfirmed (%s), reconciling", instrument, posID)
		if _, rerr := e.sync.Reconcile(ctx); rerr != nil {
			log.Printf("engine: reconcile after timeout: %v", rerr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	log.Printf("engine: opened %s %s size=%.6f entry=%.4f stop=%.4f target=%.4f",
		instrument, dec.Direction, dec.Size, dec.Entry, dec.Stop, dec.Target)
	return nil
}

// syncPass is the reconciliation schedule. It runs even while halted so the
// ledger tracks positions an operator flattens by hand.
func (e *Engine) syncPass(ctx context.Context) {
	if !e.halt.Halted() {
		e.setState(Syncing)
		defer e.setState(Idle)
	}

	corrections, err := e.sync.Reconcile(ctx)
	if err != nil {
		log.Printf("engine: sync: %v", err)
		return
	}
	for _, c := range corrections {
		log.Printf("engine: sync %s %s %s %s", c.Kind, c.Instrument, c.PositionID, c.Detail)
	}
}

// monitorPass is the fast schedule over live positions: retry missing
// protective orders, advance trailing stops, and (when protective orders
// are simulated) check exits. It keeps running during a halt so existing
// positions stay protected.
func (e *Engine) monitorPass(ctx context.Context) {
	if !e.halt.Halted() {
		e.setState(Monitoring)
		defer e.setState(Idle)
	}

	for _, pos := range e.book.Snapshot() {
		if pos.Status != ledger.Open {
			continue
		}

		tick, err := e.gw.GetTick(ctx, pos.Instrument)
		if err != nil {
			log.Printf("engine: monitor tick %s: %v", pos.Instrument, err)
			continue
		}
		e.book.UpdateHighWaterMark(pos.ID, tick.Mark(pos.Direction))

		if pos.Unprotected {
			if err := e.exec.Protect(ctx, pos.ID); err != nil {
				log.Printf("engine: protect %s: %v", pos.ID, err)
			}
		}

		if vol, err := e.vol.Measure(ctx, pos.Instrument); err == nil {
			if err := e.exec.Trail(ctx, pos.ID, vol); err != nil {
				log.Printf("engine: trail %s: %v", pos.ID, err)
			}
		}

		if e.cfg.Engine.PaperTrading {
			if err := e.exec.CheckExit(ctx, pos.ID, tick); err != nil {
				log.Printf("engine: exit check %s: %v", pos.ID, err)
			}
		}
	}
}

func (e *Engine) refreshEquity(ctx context.Context) {
	acct, err := e.gw.GetAccount(ctx)
	if err != nil {
		log.Printf("engine: account: %v", err)
		return
	}
	e.acct.SetEquity(acct.Equity)
}

// parseDayBoundary converts "15:04" to an offset from UTC midnight.
func parseDayBoundary(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("day boundary %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
