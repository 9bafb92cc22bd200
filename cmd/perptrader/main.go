package main

import (
	"os"

	"github.com/rustyeddy/perptrader/cmd/perptrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
