// Package memory defines the memory surfaces of the proxy: the
// long-term tenant knowledge store interface, and the merge layer that
// combines long-term facts with ephemeral session context into a single
// prompt block. The tiered session store lives in memory/session, the
// chromem-go long-term backend in memory/longterm, and the background
// persistence pipeline in memory/persist.
package memory
