// Package tenant parses and validates caller-supplied tenant identifiers.
//
// A tenant identifier is either a bare namespace ("acme") or a namespace
// with an ephemeral session component ("acme:charlie@workstation"). The
// presence of a session component selects session-memory mode for the
// request; the bare namespace addresses the tenant's durable knowledge
// store.
//
// Validation happens here, before any memory lookup, so that malformed
// identifiers never reach storage.
package tenant
