package main

import (
	"os"

	"cloudarb/cmd/pricecheck/app"
	"cloudarb/pkg/signals"
)

func main() {
	ctx := signals.SetupSignalHandler()
	if err := app.NewPricecheckCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
