// Command synthx runs the synthetic securities market simulator.
package main

import (
	"context"
	"fmt"
	"os"

	"synth-exchange/internal/cli"
	"synth-exchange/internal/logging"
)

func main() {
	logger := logging.NewLogger()
	if err := cli.NewRootCmd(logger).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
