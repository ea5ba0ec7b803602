// Package config loads and validates the TOML configuration for the
// tutorcast CLI. Configuration resolves from an explicit --config path,
// then ~/.config/tutorcast/config.toml, then ./tutorcast.toml, with
// defaults applied for everything a file omits.
package config
