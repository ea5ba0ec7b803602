// Package session owns the authenticated identity for the CLI: it talks to
// the backend auth endpoints, persists the bearer token and identity record
// across invocations, and mirrors credential changes to the capture
// extension's companion bridge on a best-effort basis.
package session
