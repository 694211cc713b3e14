// Package stream drives one client-visible chat completion from the
// first SSE frame to [DONE]. The Controller is an explicit bounded
// state machine over upstream model turns: content deltas are forwarded
// verbatim as they arrive, tool-call fragments are accumulated and
// executed between turns, and follow-up model calls continue under the
// same SSE response. A keep-alive scheduler fills silent gaps while
// tools or follow-up calls are outstanding so intermediaries never see
// an idle connection.
package stream
