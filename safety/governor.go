package safety

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rustyeddy/perptrader/journal"
)

// Denial codes, in check order. The first failing check wins.
const (
	CodeHalted           = "HALTED"
	CodeEquityKillSwitch = "EQUITY_KILL_SWITCH"
	CodeDailyLossLimit   = "DAILY_LOSS_LIMIT"
	CodePositionLimit    = "POSITION_LIMIT"
	CodeCoolingOff       = "COOLING_OFF"
)

type Denial struct {
	Code   string
	Reason string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Reason)
}

type Config struct {
	EquityKillSwitch     float64
	DailyLossLimitPct    float64
	MaxOpenTrades        int
	ConsecutiveLossLimit int
	Cooldown             time.Duration
	DayBoundary          time.Duration // offset from UTC midnight
}

// Governor is the pre-trade gate and post-trade circuit breaker. It is the
// only writer of HaltState.
type Governor struct {
	cfg  Config
	acct *AccountState
	halt *HaltState
	jrnl journal.Journal

	mu            sync.Mutex
	cooldownUntil time.Time

	now func() time.Time // test seam
}

func NewGovernor(cfg Config, acct *AccountState, halt *HaltState, jrnl journal.Journal) *Governor {
	return &Governor{
		cfg:  cfg,
		acct: acct,
		halt: halt,
		jrnl: jrnl,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// PreTradeCheck gates one candidate trade. nil means allow. Checks run in a
// fixed order and short-circuit on the first failure; kill-switch and
// daily-loss failures also latch the halt.
func (g *Governor) PreTradeCheck(instrument string, openPositions int) *Denial {
	now := g.now()
	g.acct.MaybeRollover(now, g.cfg.DayBoundary)

	if g.halt.Halted() {
		reason, _ := g.halt.Reason()
		return g.deny(instrument, &Denial{CodeHalted, "halted: " + reason}, false)
	}

	snap := g.acct.Snapshot()

	if snap.Equity < g.cfg.EquityKillSwitch {
		d := &Denial{CodeEquityKillSwitch, fmt.Sprintf("equity kill switch: equity %.2f below %.2f", snap.Equity, g.cfg.EquityKillSwitch)}
		g.triggerHalt("equity kill switch", now)
		return g.deny(instrument, d, true)
	}

	dayLimit := -g.cfg.DailyLossLimitPct * snap.DayStartEquity
	if snap.DailyRealizedPL <= dayLimit {
		d := &Denial{CodeDailyLossLimit, fmt.Sprintf("daily loss limit: day realized %.2f at limit %.2f", snap.DailyRealizedPL, dayLimit)}
		g.triggerHalt("daily loss limit", now)
		return g.deny(instrument, d, true)
	}

	if openPositions >= g.cfg.MaxOpenTrades {
		return g.deny(instrument, &Denial{CodePositionLimit, fmt.Sprintf("position limit reached: %d open, max %d", openPositions, g.cfg.MaxOpenTrades)}, false)
	}

	if snap.ConsecutiveLosses >= g.cfg.ConsecutiveLossLimit {
		g.mu.Lock()
		if g.cooldownUntil.IsZero() {
			g.cooldownUntil = now.Add(g.cfg.Cooldown)
		}
		until := g.cooldownUntil
		g.mu.Unlock()

		if now.Before(until) {
			return g.deny(instrument, &Denial{CodeCoolingOff, fmt.Sprintf("cooling off until %s after %d consecutive losses", until.Format(time.RFC3339), snap.ConsecutiveLosses)}, false)
		}

		// Cooldown served: the streak gets a clean slate.
		g.acct.ResetLossStreak()
		g.mu.Lock()
		g.cooldownUntil = time.Time{}
		g.mu.Unlock()
	}

	return nil
}

// PostTradeCheck runs after every position close. The ledger has already
// applied the realized P&L; this re-evaluates the halting thresholds so a
// breach stops trading before the next cycle ticks.
func (g *Governor) PostTradeCheck() {
	now := g.now()
	g.acct.MaybeRollover(now, g.cfg.DayBoundary)
	snap := g.acct.Snapshot()

	if snap.ConsecutiveLosses < g.cfg.ConsecutiveLossLimit {
		g.mu.Lock()
		g.cooldownUntil = time.Time{}
		g.mu.Unlock()
	}

	if snap.Equity < g.cfg.EquityKillSwitch {
		g.triggerHalt("equity kill switch", now)
		return
	}
	if snap.DailyRealizedPL <= -g.cfg.DailyLossLimitPct*snap.DayStartEquity {
		g.triggerHalt("daily loss limit", now)
	}
}

func (g *Governor) triggerHalt(reason string, at time.Time) {
	if !g.halt.Halt(reason, at) {
		return
	}
	log.Printf("safety: HALT triggered: %s", reason)
	if err := g.jrnl.RecordHalt(reason, at); err != nil {
		log.Printf("safety: journal halt: %v", err)
	}
}

func (g *Governor) deny(instrument string, d *Denial, halted bool) *Denial {
	if err := g.jrnl.RecordDenial(journal.Denial{
		Time:       g.now(),
		Instrument: instrument,
		Code:       d.Code,
		Reason:     d.Reason,
		Halted:     halted,
	}); err != nil {
		log.Printf("safety: journal denial: %v", err)
	}
	return d
}
