package config

import (
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateCompanion(); err != nil {
		return err
	}
	if err := c.validateRecordings(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	parsed, err := url.Parse(c.Server.APIURL)
	if err != nil {
		return fmt.Errorf("server.api_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.api_url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("server.api_url must include a host")
	}

	parsed, err = url.Parse(c.Server.EventsURL)
	if err != nil {
		return fmt.Errorf("server.events_url: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("server.events_url must use ws or wss, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("server.events_url must include a host")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.ReconnectAttempts <= 0 {
		return errors.New("events.reconnect_attempts must be positive")
	}
	if c.Events.ReconnectDelay <= 0 {
		return errors.New("events.reconnect_delay must be positive")
	}
	return nil
}

func (c *Config) validateCompanion() error {
	if c.Companion.Endpoint == "" {
		return nil
	}
	parsed, err := url.Parse(c.Companion.Endpoint)
	if err != nil {
		return fmt.Errorf("companion.endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("companion.endpoint must use http or https, got %q", parsed.Scheme)
	}
	if c.Companion.ExtensionID == "" {
		return errors.New("companion.extension_id must be set when companion.endpoint is configured")
	}
	return nil
}

func (c *Config) validateRecordings() error {
	if c.Recordings.PageLimit <= 0 {
		return errors.New("recordings.page_limit must be positive")
	}
	if _, err := language.Parse(c.Recordings.TargetLanguage); err != nil {
		return fmt.Errorf("recordings.target_language %q is not a valid locale: %w", c.Recordings.TargetLanguage, err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
