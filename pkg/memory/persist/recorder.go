package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cerebro-ai/cerebro/pkg/memory/session"
)

// Sink receives snapshots. *Archive is the production implementation.
type Sink interface {
	Store(ctx context.Context, snapshot session.Snapshot) error
}

// RecorderConfig configures the background writer.
type RecorderConfig struct {
	// Buffer is the snapshot channel capacity. Default: 256.
	Buffer int

	// WriteTimeout bounds one storage write. Default: 5s.
	WriteTimeout time.Duration

	// MaxRetries is how many times a failed write is retried before the
	// snapshot is dropped. Default: 3.
	MaxRetries int

	// RetryBackoff is the base delay between retries, doubled each
	// attempt. Default: 250ms.
	RetryBackoff time.Duration
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *RecorderConfig) ApplyDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
}

// Recorder writes ended-session snapshots to the sink asynchronously.
// Enqueue never blocks the caller: a full buffer drops the snapshot
// with a logged error. Failed writes are retried with backoff a bounded
// number of times, then dropped.
type Recorder struct {
	sink   Sink
	config RecorderConfig
	ch     chan session.Snapshot
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewRecorder creates the recorder and starts its worker.
func NewRecorder(sink Sink, config RecorderConfig) *Recorder {
	config.ApplyDefaults()
	r := &Recorder{
		sink:   sink,
		config: config,
		ch:     make(chan session.Snapshot, config.Buffer),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "memory.persist.recorder"),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Enqueue hands a snapshot to the background writer. It returns
// immediately; a full buffer means the snapshot is lost.
func (r *Recorder) Enqueue(snapshot session.Snapshot) {
	select {
	case r.ch <- snapshot:
	default:
		r.logger.Error("persistence buffer full, dropping session snapshot",
			"session", snapshot.Key(),
			"capacity", r.config.Buffer,
		)
	}
}

// Close drains pending snapshots and stops the worker.
func (r *Recorder) Close() error {
	close(r.done)
	r.wg.Wait()
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case snapshot := <-r.ch:
			r.write(snapshot)
		case <-r.done:
			for {
				select {
				case snapshot := <-r.ch:
					r.write(snapshot)
				default:
					return
				}
			}
		}
	}
}

// write attempts the storage write with bounded retry, then drops.
func (r *Recorder) write(snapshot session.Snapshot) {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(r.config.RetryBackoff << (attempt - 1))
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
		err := r.sink.Store(ctx, snapshot)
		cancel()
		if err == nil {
			r.logger.Debug("session snapshot persisted",
				"session", snapshot.Key(),
				"attempt", attempt+1,
			)
			return
		}
		lastErr = err
	}
	r.logger.Error("session snapshot dropped after retries",
		"session", snapshot.Key(),
		"attempts", r.config.MaxRetries+1,
		"error", lastErr,
	)
}

// StartRetention schedules archive pruning on the given cron spec and
// returns a stop function.
func StartRetention(archive *Archive, schedule string) (stop func(), err error) {
	if schedule == "" {
		schedule = "@hourly"
	}
	c := cron.New()
	_, err = c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := archive.Prune(ctx); err != nil {
			slog.Default().Error("archive retention prune failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule retention %q: %w", schedule, err)
	}
	c.Start()
	return func() {
		ctx := c.Stop()
		<-ctx.Done()
	}, nil
}
