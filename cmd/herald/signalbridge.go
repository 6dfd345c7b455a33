package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nugget/herald/internal/dispatch"
	"github.com/nugget/herald/internal/lifecycle"
)

// startSignalBridge forwards SIGINT and SIGTERM into the dispatch loop
// as lifecycle shutdown tasks. The handler itself does no work beyond
// enqueueing, so the farewell broadcast always runs on the loop in
// order with other events. Repeated signals enqueue additional tasks;
// the notifier's idempotent Shutdown makes them harmless.
//
// The returned stop function releases the signal subscription.
func startSignalBridge(d *dispatch.Dispatcher, n *lifecycle.Notifier, logger *slog.Logger) (stop func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range ch {
			logger.Info("termination signal received", "signal", sig.String())
			d.Enqueue(func(ctx context.Context) {
				n.Shutdown(ctx)
			})
		}
	}()

	return func() {
		signal.Stop(ch)
		close(ch)
	}
}
