package stream

import (
	"context"
	"log/slog"
	"time"

	"cerebro-ai/cerebro/pkg/proxy"
)

// KeepAlive fills silent gaps in an SSE stream with comment frames so
// intermediary buffers and the client never treat the connection as
// idle. It inspects the writer's last-write time twice per interval and
// emits only when the stream has actually gone quiet, so active content
// streaming produces no keep-alive traffic at all.
type KeepAlive struct {
	writer   *proxy.StreamWriter
	interval time.Duration
	onWrite  func()
	logger   *slog.Logger
}

// NewKeepAlive creates a scheduler over the given writer. onWrite, when
// non-nil, observes every emitted keep-alive frame.
func NewKeepAlive(writer *proxy.StreamWriter, interval time.Duration, onWrite func()) *KeepAlive {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &KeepAlive{
		writer:   writer,
		interval: interval,
		onWrite:  onWrite,
		logger:   slog.Default().With("component", "stream.keepalive"),
	}
}

// Start launches the scheduler goroutine. The returned stop function
// halts it and must be called before the terminal chunk pair is
// written; it is safe to call more than once.
func (k *KeepAlive) Start(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(k.interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if time.Since(k.writer.LastWrite()) < k.interval/2 {
					continue
				}
				if err := k.writer.WriteComment("keep-alive"); err != nil {
					k.logger.Debug("keep-alive write failed, stopping", "error", err)
					return
				}
				if k.onWrite != nil {
					k.onWrite()
				}
			}
		}
	}()

	var once bool
	return func() {
		if once {
			return
		}
		once = true
		close(done)
		<-stopped
	}
}
