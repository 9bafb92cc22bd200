package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration, loaded once at startup.
type Config struct {
	Account AccountConfig `yaml:"account"`
	Risk    RiskConfig    `yaml:"risk"`
	Safety  SafetyConfig  `yaml:"safety"`
	Engine  EngineConfig  `yaml:"engine"`
	Sync    SyncConfig    `yaml:"sync"`
	Signal  SignalConfig  `yaml:"signal"`
	Journal JournalConfig `yaml:"journal"`
}

type AccountConfig struct {
	StartingEquity float64 `yaml:"starting_equity"`
}

type RiskConfig struct {
	RiskPerTradePct    float64 `yaml:"risk_per_trade_pct"`   // e.g. 0.02
	StopLossMultiplier float64 `yaml:"stop_loss_multiplier"` // stop distance = ATR * this
	TrailingSLMult     float64 `yaml:"trailing_sl_multiplier"`
	RewardMultiple     float64 `yaml:"reward_multiple"` // target = this * stop distance
	MinOrderSize       float64 `yaml:"min_order_size"`  // exchange minimum, instrument units
	MaxNotional        float64 `yaml:"max_notional"`    // per-position cap in quote currency
}

type SafetyConfig struct {
	EquityKillSwitch     float64 `yaml:"equity_kill_switch"` // absolute equity floor
	DailyLossLimitPct    float64 `yaml:"daily_loss_limit_pct"`
	MaxOpenTrades        int     `yaml:"max_open_trades"`
	ConsecutiveLossLimit int     `yaml:"consecutive_loss_limit"`
	CooldownPeriod       string  `yaml:"cooldown_period"` // e.g. "4h"
	DayBoundary          string  `yaml:"day_boundary"`    // "15:04" UTC, default "00:00"
}

type EngineConfig struct {
	Instruments   []string `yaml:"instruments"` // e.g. BTCUSDT, ETHUSDT
	CyclePeriod   string   `yaml:"cycle_period"`
	SyncPeriod    string   `yaml:"sync_period"`
	MonitorPeriod string   `yaml:"monitor_period"`
	PaperTrading  bool     `yaml:"paper_trading"`
	ATRPeriod     int      `yaml:"atr_period"`
	CandleLimit   int      `yaml:"candle_limit"` // candles fetched per evaluation
}

// SyncConfig controls how reconciliation handles positions the engine did
// not open: stop/target fall back to these fractions of the adopted entry.
type SyncConfig struct {
	DefaultStopPct   float64 `yaml:"default_stop_pct"`   // e.g. 0.02
	DefaultTargetPct float64 `yaml:"default_target_pct"` // e.g. 0.04
}

type SignalConfig struct {
	EMAPeriod int     `yaml:"ema_period"`
	RSIPeriod int     `yaml:"rsi_period"`
	RSILong   float64 `yaml:"rsi_long"`
	RSIShort  float64 `yaml:"rsi_short"`
}

type JournalConfig struct {
	Type       string `yaml:"type"` // "sqlite" or "csv"
	DBPath     string `yaml:"db_path,omitempty"`
	EventsFile string `yaml:"events_file,omitempty"`
	DenialFile string `yaml:"denials_file,omitempty"`
}

// Credentials are read from the environment (optionally seeded from a .env
// file), never from the YAML config.
type Credentials struct {
	APIKey    string
	SecretKey string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		APIKey:    os.Getenv("BINANCE_API_KEY"),
		SecretKey: os.Getenv("BINANCE_SECRET_KEY"),
	}
}

// LoadFromFile loads and validates a YAML configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Account.StartingEquity <= 0 {
		return fmt.Errorf("account.starting_equity must be positive")
	}
	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct > 1 {
		return fmt.Errorf("risk.risk_per_trade_pct must be between 0 and 1")
	}
	if c.Risk.StopLossMultiplier <= 0 {
		return fmt.Errorf("risk.stop_loss_multiplier must be positive")
	}
	if c.Risk.RewardMultiple <= 0 {
		return fmt.Errorf("risk.reward_multiple must be positive")
	}
	if c.Risk.TrailingSLMult <= 0 {
		return fmt.Errorf("risk.trailing_sl_multiplier must be positive")
	}
	if c.Safety.EquityKillSwitch < 0 {
		return fmt.Errorf("safety.equity_kill_switch must not be negative")
	}
	if c.Safety.DailyLossLimitPct <= 0 || c.Safety.DailyLossLimitPct > 1 {
		return fmt.Errorf("safety.daily_loss_limit_pct must be between 0 and 1")
	}
	if c.Safety.MaxOpenTrades <= 0 {
		return fmt.Errorf("safety.max_open_trades must be positive")
	}
	if c.Safety.ConsecutiveLossLimit <= 0 {
		return fmt.Errorf("safety.consecutive_loss_limit must be positive")
	}
	if _, err := time.Parse("15:04", c.Safety.DayBoundary); err != nil {
		return fmt.Errorf("safety.day_boundary must be HH:MM: %w", err)
	}
	if len(c.Engine.Instruments) == 0 {
		return fmt.Errorf("engine.instruments is required")
	}
	for _, key := range []struct {
		name, val string
	}{
		{"engine.cycle_period", c.Engine.CyclePeriod},
		{"engine.sync_period", c.Engine.SyncPeriod},
		{"engine.monitor_period", c.Engine.MonitorPeriod},
		{"safety.cooldown_period", c.Safety.CooldownPeriod},
	} {
		if d, err := time.ParseDuration(key.val); err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration", key.name)
		}
	}
	if c.Engine.ATRPeriod <= 0 {
		return fmt.Errorf("engine.atr_period must be positive")
	}
	if c.Sync.DefaultStopPct <= 0 || c.Sync.DefaultTargetPct <= 0 {
		return fmt.Errorf("sync default stop/target percentages must be positive")
	}
	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite type")
		}
	case "csv":
		if c.Journal.EventsFile == "" || c.Journal.DenialFile == "" {
			return fmt.Errorf("journal events_file and denials_file required for csv type")
		}
	default:
		return fmt.Errorf("journal.type must be 'sqlite' or 'csv'")
	}
	return nil
}

// Duration helpers; Validate has already checked these parse.

func (c *Config) CyclePeriod() time.Duration   { return mustDuration(c.Engine.CyclePeriod) }
func (c *Config) SyncPeriod() time.Duration    { return mustDuration(c.Engine.SyncPeriod) }
func (c *Config) MonitorPeriod() time.Duration { return mustDuration(c.Engine.MonitorPeriod) }
func (c *Config) CooldownPeriod() time.Duration {
	return mustDuration(c.Safety.CooldownPeriod)
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("unvalidated duration %q: %v", s, err))
	}
	return d
}

// Default returns a configuration with sensible paper-trading defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{StartingEquity: 10000},
		Risk: RiskConfig{
			RiskPerTradePct:    0.02,
			StopLossMultiplier: 2,
			TrailingSLMult:     2,
			RewardMultiple:     2,
			MinOrderSize:       0.001,
			MaxNotional:        50000,
		},
		Safety: SafetyConfig{
			EquityKillSwitch:     5000,
			DailyLossLimitPct:    0.05,
			MaxOpenTrades:        5,
			ConsecutiveLossLimit: 3,
			CooldownPeriod:       "4h",
			DayBoundary:          "00:00",
		},
		Engine: EngineConfig{
			Instruments:   []string{"BTCUSDT", "ETHUSDT"},
			CyclePeriod:   "1h",
			SyncPeriod:    "5m",
			MonitorPeriod: "30s",
			PaperTrading:  true,
			ATRPeriod:     14,
			CandleLimit:   100,
		},
		Sync: SyncConfig{
			DefaultStopPct:   0.02,
			DefaultTargetPct: 0.04,
		},
		Signal: SignalConfig{
			EMAPeriod: 50,
			RSIPeriod: 14,
			RSILong:   35,
			RSIShort:  65,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./perptrader.sqlite",
		},
	}
}
