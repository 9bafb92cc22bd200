package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "perptrader",
	Short: "An automated perpetual-futures trading engine",
	Long: `Perptrader is an automated trading engine for crypto perpetual futures.

It provides:
  - ATR-based position sizing with hard risk caps per trade
  - A safety governor with kill switch, daily loss limit, and cooling-off
  - Paper trading against live market data
  - Periodic reconciliation against the exchange's reported positions
  - A SQLite audit journal of every position event and denial`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Exchange credentials come from the environment; a local .env file is
	// honored when present.
	cobra.OnInitialize(func() { _ = godotenv.Load() })
}
