package session

import (
	"strings"
	"sync"
	"time"
)

// StoredMessage is one raw message held in the recent tier.
type StoredMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Summary is one compressed block in the hourly tier.
type Summary struct {
	// Bucket is the start of the hour the summarized messages fall in.
	Bucket time.Time `json:"bucket"`

	// Text is the compressed content.
	Text string `json:"text"`

	// Covered is how many raw messages the summary replaced.
	Covered int `json:"covered"`
}

// Memory is one session's tiered state. All tier access goes through
// the per-session mutex; the eviction sweep takes the same lock so a
// session is never summarized and evicted concurrently.
type Memory struct {
	mu sync.Mutex

	base    string
	session string

	recent         []StoredMessage
	hourly         []Summary
	sessionSummary string

	createdAt    time.Time
	lastAccessed time.Time
	ended        bool
}

// Snapshot is the full accumulated state handed to the end-of-session
// notification and to explicit exports.
type Snapshot struct {
	Base           string          `json:"base"`
	Session        string          `json:"session"`
	Recent         []StoredMessage `json:"recent"`
	Hourly         []Summary       `json:"hourly_summaries"`
	SessionSummary string          `json:"session_summary,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessed   time.Time       `json:"last_accessed"`
}

// Key returns the full tenant:session identifier.
func (s *Snapshot) Key() string {
	return s.Base + ":" + s.Session
}

func newMemory(base, session string, now time.Time) *Memory {
	return &Memory{
		base:         base,
		session:      session,
		createdAt:    now,
		lastAccessed: now,
	}
}

// touch refreshes the access timestamp. Caller holds the lock.
func (m *Memory) touch(now time.Time) {
	m.lastAccessed = now
}

// snapshot copies the full state. Caller holds the lock.
func (m *Memory) snapshot() Snapshot {
	return Snapshot{
		Base:           m.base,
		Session:        m.session,
		Recent:         append([]StoredMessage(nil), m.recent...),
		Hourly:         append([]Summary(nil), m.hourly...),
		SessionSummary: m.sessionSummary,
		CreatedAt:      m.createdAt,
		LastAccessed:   m.lastAccessed,
	}
}

// sizeBytes approximates the serialized memory size. Caller holds the
// lock.
func (m *Memory) sizeBytes() int64 {
	var n int64
	for _, msg := range m.recent {
		n += int64(len(msg.Role) + len(msg.Content) + 48)
	}
	for _, s := range m.hourly {
		n += int64(len(s.Text) + 48)
	}
	n += int64(len(m.sessionSummary))
	return n
}

// contextBlob assembles the prompt-ready context: session summary
// first, then hourly summaries, then raw recent messages. A non-zero
// time range filters summaries by bucket and messages by timestamp.
// Caller holds the lock.
func (m *Memory) contextBlob(from, to time.Time) string {
	ranged := !from.IsZero() || !to.IsZero()
	inRange := func(t time.Time) bool {
		if !ranged {
			return true
		}
		if !from.IsZero() && t.Before(from) {
			return false
		}
		if !to.IsZero() && t.After(to) {
			return false
		}
		return true
	}

	var b strings.Builder
	if m.sessionSummary != "" && !ranged {
		b.WriteString("Session summary: ")
		b.WriteString(m.sessionSummary)
		b.WriteString("\n")
	}
	for _, s := range m.hourly {
		if !inRange(s.Bucket) && !inRange(s.Bucket.Add(time.Hour)) {
			continue
		}
		b.WriteString("Earlier (")
		b.WriteString(s.Bucket.Format("2006-01-02 15:04"))
		b.WriteString("): ")
		b.WriteString(s.Text)
		b.WriteString("\n")
	}
	for _, msg := range m.recent {
		if !inRange(msg.At) {
			continue
		}
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
