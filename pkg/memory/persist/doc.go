// Package persist is the background persistence pipeline for ended
// sessions. Snapshots arrive on a buffered channel and a worker writes
// them to a SQLite archive with bounded retry; a full buffer or
// exhausted retries drop the snapshot with a logged error, never
// blocking or failing the request path. A cron-scheduled pruner
// enforces the archive retention window.
package persist
