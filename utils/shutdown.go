package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// WatchShutdownSignals returns a context that is cancelled when the process
// receives SIGINT or SIGTERM. The returned stop function releases the
// signal registration and must be called once the context is no longer used.
func WatchShutdownSignals(ctx context.Context, log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	signalsChan := make(chan os.Signal, 1)
	signal.Notify(signalsChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signalsChan:
			log.Warn("got OS signal", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(signalsChan)
		cancel()
	}
}
