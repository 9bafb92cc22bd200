package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/perptrader/config"
	"github.com/rustyeddy/perptrader/engine"
	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/exchange/binance"
	"github.com/rustyeddy/perptrader/exchange/paper"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading engine",
	Long: `Run the trading engine with settings from a configuration file.

Paper mode (the default) simulates fills against live Binance market data
and never places a real order. Live mode requires BINANCE_API_KEY and
BINANCE_SECRET_KEY in the environment or a .env file.

Example:
  perptrader run -f config.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to YAML config file (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var j journal.Journal
	if cfg.Journal.Type == "csv" {
		j, err = journal.NewCSV(cfg.Journal.EventsFile, cfg.Journal.DenialFile)
	} else {
		j, err = journal.NewSQLite(cfg.Journal.DBPath)
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	creds := config.CredentialsFromEnv()
	live := binance.NewGateway(creds.APIKey, creds.SecretKey)

	var gw exchange.Gateway = live
	if cfg.Engine.PaperTrading {
		gw = paper.New(live, cfg.Account.StartingEquity)
	} else if creds.APIKey == "" || creds.SecretKey == "" {
		return fmt.Errorf("live trading requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
	}

	eng, err := engine.New(cfg, gw, j)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return eng.Run(ctx)
}
