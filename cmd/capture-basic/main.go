package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pi-capture/pkg/capturecli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := capturecli.NewBasicApp(capturecli.Options{})
	if err := app.RunContext(ctx, os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		}
		stop()
		os.Exit(1)
	}
}
