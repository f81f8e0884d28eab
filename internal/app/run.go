package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Run loads config, builds the App, and serves until SIGINT or SIGTERM.
// Errors bubble up instead of os.Exit so main's defers stay effective.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}
