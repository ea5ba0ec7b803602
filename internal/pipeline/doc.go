// Package pipeline models the server-side processing pipeline as seen by
// clients: recording lifecycle statuses, the ordered list of processing
// steps, and the pure projection from persisted status plus live step
// signals to a per-step display state.
package pipeline
