// Package session implements the tiered ephemeral conversation store.
// Each (base tenant, session id) pair owns one memory with three tiers:
// recent raw messages, hourly compressed summaries, and a rolling
// session summary. Appends trigger summarization of the oldest recent
// block once the soft cap is crossed; a failed summarization keeps the
// raw messages and retries on the next trigger. A cron sweep evicts
// sessions past their TTL or absolute age, firing the end-of-session
// notification exactly once with the full accumulated state.
package session
