package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals are the signals that request a graceful stop.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// ShutdownContext derives a context that is cancelled on the first
// shutdown signal. The returned stop function releases the signal
// registration and restores default delivery.
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, ShutdownSignals...)
}

// WaitForShutdown returns a channel that delivers shutdown signals, for
// callers that select over several stop conditions.
func WaitForShutdown() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, ShutdownSignals...)
	return ch
}
