package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeServer(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEvents()
	c.normalizeCompanion()
	c.normalizeRecordings()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeServer() error {
	if value, ok := os.LookupEnv("TUTORCAST_API_URL"); ok && strings.TrimSpace(value) != "" {
		c.Server.APIURL = value
	}
	if value, ok := os.LookupEnv("TUTORCAST_EVENTS_URL"); ok && strings.TrimSpace(value) != "" {
		c.Server.EventsURL = value
	}
	c.Server.APIURL = strings.TrimRight(strings.TrimSpace(c.Server.APIURL), "/")
	if c.Server.APIURL == "" {
		c.Server.APIURL = defaultAPIURL
	}
	c.Server.EventsURL = strings.TrimRight(strings.TrimSpace(c.Server.EventsURL), "/")
	if c.Server.EventsURL == "" {
		c.Server.EventsURL = defaultEventsURL
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEvents() {
	if c.Events.ReconnectAttempts <= 0 {
		c.Events.ReconnectAttempts = defaultReconnectAttempts
	}
	if c.Events.ReconnectDelay <= 0 {
		c.Events.ReconnectDelay = defaultReconnectDelay
	}
}

func (c *Config) normalizeCompanion() {
	c.Companion.Endpoint = strings.TrimRight(strings.TrimSpace(c.Companion.Endpoint), "/")
	c.Companion.ExtensionID = strings.TrimSpace(c.Companion.ExtensionID)
	if c.Companion.RequestTimeout <= 0 {
		c.Companion.RequestTimeout = defaultCompanionTimeout
	}
}

func (c *Config) normalizeRecordings() {
	if c.Recordings.PageLimit <= 0 {
		c.Recordings.PageLimit = defaultPageLimit
	}
	c.Recordings.TargetLanguage = strings.TrimSpace(c.Recordings.TargetLanguage)
	if c.Recordings.TargetLanguage == "" {
		c.Recordings.TargetLanguage = defaultTargetLanguage
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
