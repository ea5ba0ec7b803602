// Package main hosts the tutorcast CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into calls
// against the tutorial backend: session management, recording uploads and
// listings, pipeline processing, and a live watch view driven by the
// push-event stream. It centralizes configuration resolution, session
// loading, and client construction so subcommands can focus on user
// experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
