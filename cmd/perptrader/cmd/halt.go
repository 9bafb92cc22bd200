package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/perptrader/journal"
	"github.com/spf13/cobra"
)

var haltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Inspect or clear the engine halt state",
	Long: `Show whether a halt is latched in the journal, and clear it.

A halted engine stops opening positions until an operator clears the halt;
restarting the process does not. Clearing requires the engine to be
stopped, or it will keep trading against the stale in-memory halt.

Examples:
  perptrader halt
  perptrader halt --clear`,
	RunE: runHalt,
}

var (
	haltDBPath string
	haltClear  bool
)

func init() {
	rootCmd.AddCommand(haltCmd)

	haltCmd.Flags().StringVarP(&haltDBPath, "db", "d", "./perptrader.sqlite", "path to SQLite journal DB")
	haltCmd.Flags().BoolVar(&haltClear, "clear", false, "clear the active halt")
}

func runHalt(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(haltDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	h, err := j.ActiveHalt()
	if err != nil {
		return err
	}
	if h == nil {
		fmt.Println("No active halt.")
		return nil
	}

	fmt.Printf("Halted since %s: %s\n", h.HaltedAt.Format(time.RFC3339), h.Reason)
	if !haltClear {
		return nil
	}

	if err := j.ClearHalt(time.Now().UTC()); err != nil {
		return fmt.Errorf("clear halt: %w", err)
	}
	fmt.Println("Halt cleared.")
	return nil
}
