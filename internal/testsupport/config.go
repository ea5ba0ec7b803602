// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"tutorcast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAPIURL points the config at a test backend.
func WithAPIURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Server.APIURL = url
	}
}

// WithEventsURL points the config at a test events endpoint.
func WithEventsURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Server.EventsURL = url
	}
}

// WithCompanionEndpoint enables companion sync against a test endpoint.
func WithCompanionEndpoint(endpoint, extensionID string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Companion.Endpoint = endpoint
		cfg.Companion.ExtensionID = extensionID
	}
}
