// Command trader runs the daily UK paper-trading cycle.
package main

import (
	"fmt"
	"os"

	"daily-equity-trader/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
