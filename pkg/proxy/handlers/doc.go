// Package handlers contains the HTTP handlers for the proxy API:
// tenant-scoped chat completions (streaming and non-streaming), tool
// registry management, and explicit session lifecycle control.
//
// Routes:
//
//	POST   /v1/{tenant}/chat/completions
//	POST   /v1/{tenant}/tools
//	GET    /v1/{tenant}/tools
//	DELETE /v1/{tenant}/tools
//	DELETE /v1/{tenant}/session
//
// The {tenant} path segment is either a bare base tenant ("acme") or a
// session-scoped key ("acme:user@laptop").
package handlers
