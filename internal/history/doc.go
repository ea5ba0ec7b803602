// Package history keeps a local SQLite record of recordings this client
// has uploaded or observed, so listings work without the backend. It is a
// cache of observations, never authoritative over server state.
package history
