package main

import (
	"os"

	"cloudarb/cmd/server/app"
	"cloudarb/pkg/signals"
)

func main() {
	ctx := signals.SetupSignalHandler()
	if err := app.NewServerCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
