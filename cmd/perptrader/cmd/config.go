package cmd

import (
	"fmt"

	"github.com/rustyeddy/perptrader/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the default configuration as YAML",
	Long: `Print the default configuration to stdout.

Redirect it to a file to use as a starting point:
  perptrader config > config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(config.Default())
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
