package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/augmentalis/uiscout/cmd"
	"github.com/augmentalis/uiscout/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()

	if err != nil {
		// An interrupt mid-run is a clean shutdown, not a failure.
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
