// Package tools provides tool-call normalization, the per-tenant tool
// registry, and the bounded concurrent executor that runs tool calls on
// behalf of the stream controller.
//
// Upstream models emit tool calls in slightly different shapes; the
// normalizer converts them all into one canonical immutable Call at the
// boundary so the executor never branches on shape. The registry holds
// tools registered out-of-band per base tenant, alongside any tools the
// client supplies per request.
package tools
