// Package longterm implements the durable tenant knowledge store on
// chromem-go: one persistent vector collection per base tenant, with
// embedding delegated to a pluggable embedding function.
package longterm
