package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/perptrader/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the position journal",
	Long: `Query and display position events from the SQLite journal.

Subcommands:
  position - Full event history of one position by ID
  today    - Positions closed today
  day      - Positions closed on a specific day

Examples:
  perptrader journal position 01JA3V...
  perptrader journal today
  perptrader journal day 2026-08-25`,
}

var journalPositionCmd = &cobra.Command{
	Use:   "position <position-id>",
	Short: "Show the full event history of a position",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalPosition,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List positions closed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List positions closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalPositionCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./perptrader.sqlite", "path to SQLite journal DB")
}

func openStore() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalPosition(cmd *cobra.Command, args []string) error {
	j, err := openStore()
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.PositionHistory(args[0])
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events for position %s", args[0])
	}

	fmt.Printf("Position %s (%s %s)\n", args[0], events[0].Direction, events[0].Instrument)
	for _, e := range events {
		fmt.Printf("  %s  %-8s %s", e.Time.Format(time.RFC3339), e.Status, e.Reason)
		if e.Status == "closed" {
			fmt.Printf("  exit=%.4f pl=%+.2f", e.ExitPrice, e.RealizedPL)
		}
		fmt.Println()
	}
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	start := time.Now().UTC().Truncate(24 * time.Hour)
	return listClosed(start, start.Add(24*time.Hour))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	start, err := time.Parse("2006-01-02", args[0])
	if err != nil {
		return fmt.Errorf("day must be YYYY-MM-DD: %w", err)
	}
	return listClosed(start, start.Add(24*time.Hour))
}

func listClosed(start, end time.Time) error {
	j, err := openStore()
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.ListClosedBetween(start, end)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No closed positions.")
		return nil
	}

	var total float64
	for _, e := range events {
		total += e.RealizedPL
		fmt.Printf("%s  %-10s %-5s qty=%.6f entry=%.4f exit=%.4f pl=%+.2f  %s\n",
			e.Time.Format("15:04:05"), e.Instrument, e.Direction,
			e.Qty, e.EntryPrice, e.ExitPrice, e.RealizedPL, e.Reason)
	}
	fmt.Printf("\n%d closed, total P&L %+.2f\n", len(events), total)
	return nil
}
