package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config bounds the tiered session store.
type Config struct {
	// MaxRecent is the soft cap on raw messages per session. Default: 50.
	MaxRecent int

	// SummarizeAfter triggers summarization once the recent tier grows
	// past it. Default: 30.
	SummarizeAfter int

	// SummarizeBatch is how many of the oldest raw messages one
	// summarization pass compresses. Default: 20.
	SummarizeBatch int

	// HardCeiling is the absolute message-count limit. Past it the
	// oldest unsummarized messages are discarded with a warning, even
	// when summarization keeps failing. Default: 200.
	HardCeiling int

	// TTL evicts sessions idle longer than this. Default: 24h.
	TTL time.Duration

	// MaxAge evicts sessions older than this regardless of activity.
	// Default: 168h.
	MaxAge time.Duration

	// MaxSizeBytes caps the serialized memory size per session.
	// Default: 5MB.
	MaxSizeBytes int64

	// EvictionSchedule is the cron spec of the background sweep.
	// Default: "@every 5m".
	EvictionSchedule string

	// OnEviction observes every session end with its reason, "explicit"
	// or "expired". Optional.
	OnEviction func(reason string)

	// OnSummarization observes every summarization pass with its
	// outcome, "success" or "error". Optional.
	OnSummarization func(status string)
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxRecent <= 0 {
		c.MaxRecent = 50
	}
	if c.SummarizeAfter <= 0 {
		c.SummarizeAfter = 30
	}
	if c.SummarizeBatch <= 0 {
		c.SummarizeBatch = 20
	}
	if c.HardCeiling <= 0 {
		c.HardCeiling = 200
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 168 * time.Hour
	}
	if c.MaxSizeBytes <= 0 {
		c.MaxSizeBytes = 5 << 20
	}
	if c.EvictionSchedule == "" {
		c.EvictionSchedule = "@every 5m"
	}
}

// maxHourlySummaries is how many hourly buckets are kept before the
// oldest are condensed into the rolling session summary.
const maxHourlySummaries = 6

// EndFunc receives the full accumulated state of a session exactly once
// per session lifetime, at eviction or explicit termination.
type EndFunc func(snapshot Snapshot)

// Manager owns the session map. Map access takes the manager lock;
// per-session state takes the session lock. The eviction sweep locks
// one session at a time, never blocking unrelated sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Memory

	config     Config
	summarizer Summarizer
	onEnd      EndFunc
	cron       *cron.Cron
	logger     *slog.Logger
	now        func() time.Time
}

// NewManager creates a session manager. summarizer may be nil, in which
// case the recent tier grows to the hard ceiling and is then trimmed.
// onEnd may be nil.
func NewManager(config Config, summarizer Summarizer, onEnd EndFunc) *Manager {
	config.ApplyDefaults()
	return &Manager{
		sessions:   make(map[string]*Memory),
		config:     config,
		summarizer: summarizer,
		onEnd:      onEnd,
		logger:     slog.Default().With("component", "memory.session"),
		now:        time.Now,
	}
}

func sessionKey(base, session string) string {
	return base + ":" + session
}

// GetOrCreate returns the session's memory, creating it lazily, and
// refreshes its access timestamp.
func (m *Manager) GetOrCreate(base, session string) *Memory {
	key := sessionKey(base, session)

	m.mu.RLock()
	mem, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if mem, ok = m.sessions[key]; !ok {
			mem = newMemory(base, session, m.now())
			m.sessions[key] = mem
			m.logger.Info("session created", "session", key)
		}
		m.mu.Unlock()
	}

	mem.mu.Lock()
	mem.touch(m.now())
	mem.mu.Unlock()
	return mem
}

// Append adds one message to the session's recent tier and runs
// summarization when the tier has outgrown its trigger. Summarization
// failures keep the raw messages in place for the next trigger; only
// the hard ceiling forces discard.
func (m *Manager) Append(ctx context.Context, base, session string, msg StoredMessage) {
	mem := m.GetOrCreate(base, session)

	mem.mu.Lock()
	defer mem.mu.Unlock()

	if msg.At.IsZero() {
		msg.At = m.now()
	}
	mem.recent = append(mem.recent, msg)

	// Summarize until the recent tier is back under its trigger; a
	// failed pass leaves the tier unchanged, so stop rather than spin.
	for len(mem.recent) > m.config.SummarizeAfter {
		before := len(mem.recent)
		m.summarizeOldest(ctx, mem)
		if len(mem.recent) == before {
			break
		}
	}
	m.enforceCeilings(mem)
}

// summarizeOldest compresses the oldest batch of the recent tier into
// an hourly summary. Caller holds the session lock.
func (m *Manager) summarizeOldest(ctx context.Context, mem *Memory) {
	if m.summarizer == nil {
		return
	}

	batch := m.config.SummarizeBatch
	if batch > len(mem.recent) {
		batch = len(mem.recent)
	}
	block := mem.recent[:batch]

	text, err := m.summarizer.Summarize(ctx, block)
	if err != nil {
		// Raw messages stay put; the next append retries.
		m.logger.Warn("summarization failed, retaining raw messages",
			"session", sessionKey(mem.base, mem.session),
			"block_size", batch,
			"error", err,
		)
		if m.config.OnSummarization != nil {
			m.config.OnSummarization("error")
		}
		return
	}
	if m.config.OnSummarization != nil {
		m.config.OnSummarization("success")
	}

	bucket := block[0].At.Truncate(time.Hour)
	mem.hourly = append(mem.hourly, Summary{Bucket: bucket, Text: text, Covered: batch})
	mem.recent = append([]StoredMessage(nil), mem.recent[batch:]...)

	m.logger.Debug("recent block summarized",
		"session", sessionKey(mem.base, mem.session),
		"covered", batch,
		"recent_now", len(mem.recent),
	)

	if len(mem.hourly) > maxHourlySummaries {
		m.condenseHourly(ctx, mem)
	}
}

// condenseHourly folds the oldest hourly summaries into the rolling
// session summary. Caller holds the session lock.
func (m *Manager) condenseHourly(ctx context.Context, mem *Memory) {
	overflow := len(mem.hourly) - maxHourlySummaries/2
	if overflow <= 0 {
		return
	}
	oldest := mem.hourly[:overflow]

	condensed, err := m.summarizer.Condense(ctx, mem.sessionSummary, oldest)
	if err != nil {
		m.logger.Warn("session summary refresh failed, keeping hourly tier",
			"session", sessionKey(mem.base, mem.session),
			"error", err,
		)
		return
	}
	mem.sessionSummary = condensed
	mem.hourly = append([]Summary(nil), mem.hourly[overflow:]...)
}

// enforceCeilings applies the hard message-count and size limits,
// discarding oldest unsummarized content with a warning when breached.
// Caller holds the session lock.
func (m *Manager) enforceCeilings(mem *Memory) {
	// Without a summarizer there is nothing to fold into, so the soft
	// cap acts as the discard point.
	if m.summarizer == nil {
		if over := len(mem.recent) - m.config.MaxRecent; over > 0 {
			m.logger.Warn("no summarizer configured, trimming recent tier",
				"session", sessionKey(mem.base, mem.session),
				"discarded", over,
			)
			mem.recent = append([]StoredMessage(nil), mem.recent[over:]...)
		}
	}

	if over := len(mem.recent) - m.config.HardCeiling; over > 0 {
		m.logger.Warn("session message ceiling exceeded, discarding oldest unsummarized messages",
			"session", sessionKey(mem.base, mem.session),
			"discarded", over,
		)
		mem.recent = append([]StoredMessage(nil), mem.recent[over:]...)
	}

	for mem.sizeBytes() > m.config.MaxSizeBytes && len(mem.recent) > 0 {
		m.logger.Warn("session size ceiling exceeded, discarding oldest message",
			"session", sessionKey(mem.base, mem.session),
			"size_bytes", mem.sizeBytes(),
		)
		mem.recent = append([]StoredMessage(nil), mem.recent[1:]...)
	}
}

// Retrieve implements the memory merge layer's session side: a
// prompt-ready context blob from all three tiers.
func (m *Manager) Retrieve(ctx context.Context, base, session, query string) (string, error) {
	return m.RetrieveRange(ctx, base, session, query, time.Time{}, time.Time{})
}

// RetrieveRange is Retrieve with a temporal constraint: only summaries
// and messages inside [from, to] are included. Zero bounds are open.
func (m *Manager) RetrieveRange(ctx context.Context, base, session, query string, from, to time.Time) (string, error) {
	key := sessionKey(base, session)
	m.mu.RLock()
	mem, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return "", nil
	}

	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.touch(m.now())
	return mem.contextBlob(from, to), nil
}

// End terminates a session explicitly: it is removed from the map and
// the end notification fires with the full accumulated state. Returns
// false when the session does not exist or was already ended.
func (m *Manager) End(base, session string) bool {
	key := sessionKey(base, session)

	m.mu.Lock()
	mem, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	m.finish(mem, "explicit")
	return true
}

// EvictExpired sweeps all sessions and ends those past the TTL or the
// absolute age cap. Safe to call concurrently with request traffic.
func (m *Manager) EvictExpired() int {
	now := m.now()

	m.mu.RLock()
	candidates := make([]*Memory, 0, len(m.sessions))
	for _, mem := range m.sessions {
		candidates = append(candidates, mem)
	}
	m.mu.RUnlock()

	evicted := 0
	for _, mem := range candidates {
		mem.mu.Lock()
		idle := now.Sub(mem.lastAccessed)
		age := now.Sub(mem.createdAt)
		expired := idle > m.config.TTL || age > m.config.MaxAge
		mem.mu.Unlock()
		if !expired {
			continue
		}

		key := sessionKey(mem.base, mem.session)
		m.mu.Lock()
		current, ok := m.sessions[key]
		if ok && current == mem {
			delete(m.sessions, key)
		} else {
			ok = false
		}
		m.mu.Unlock()
		if !ok {
			continue
		}

		m.finish(mem, "expired")
		evicted++
	}

	if evicted > 0 {
		m.logger.Info("eviction sweep complete", "evicted", evicted)
	}
	return evicted
}

// finish fires the end notification exactly once. The session is
// already unreachable from the map when this runs.
func (m *Manager) finish(mem *Memory, reason string) {
	mem.mu.Lock()
	if mem.ended {
		mem.mu.Unlock()
		return
	}
	mem.ended = true
	snapshot := mem.snapshot()
	mem.mu.Unlock()

	m.logger.Info("session ended",
		"session", snapshot.Key(),
		"reason", reason,
		"recent", len(snapshot.Recent),
		"hourly", len(snapshot.Hourly),
	)
	if m.config.OnEviction != nil {
		m.config.OnEviction(reason)
	}
	if m.onEnd != nil {
		m.onEnd(snapshot)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Start launches the background eviction sweep on the configured cron
// schedule. The returned stop function halts it.
func (m *Manager) Start() (stop func(), err error) {
	c := cron.New()
	if _, err := c.AddFunc(m.config.EvictionSchedule, func() { m.EvictExpired() }); err != nil {
		return nil, fmt.Errorf("schedule eviction sweep %q: %w", m.config.EvictionSchedule, err)
	}
	c.Start()
	m.cron = c
	m.logger.Info("eviction sweep scheduled", "schedule", m.config.EvictionSchedule)
	return func() {
		ctx := c.Stop()
		<-ctx.Done()
	}, nil
}
