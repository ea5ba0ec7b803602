// Package api is the typed HTTP client for the tutorial-video backend. It
// attaches the session's bearer credential to every request, transparently
// performs a single refresh-and-retry cycle on an unauthorized response,
// and surfaces server-reported error text through APIError.
package api
