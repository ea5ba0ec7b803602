package main

import (
	"log/slog"
	"strings"
	"sync"

	"tutorcast/internal/api"
	"tutorcast/internal/config"
	"tutorcast/internal/events"
	"tutorcast/internal/history"
	"tutorcast/internal/logging"
	"tutorcast/internal/session"
)

// commandContext lazily builds the shared collaborators of the command
// tree: configuration, logger, session manager, API and events clients,
// local history. Everything is constructed at most once per invocation.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	sessionOnce sync.Once
	session     *session.Manager
	sessionErr  error

	apiOnce sync.Once
	api     *api.Client
	apiErr  error

	eventsOnce sync.Once
	events     *events.Client

	historyOnce sync.Once
	history     *history.Store
	historyErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.Discard()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.Discard()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) sessionManager() (*session.Manager, error) {
	c.sessionOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.sessionErr = err
			return
		}
		manager, err := session.NewManager(cfg, session.WithLogger(c.ensureLogger()))
		if err != nil {
			c.sessionErr = err
			return
		}
		c.session = manager
	})
	return c.session, c.sessionErr
}

func (c *commandContext) apiClient() (*api.Client, error) {
	c.apiOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.apiErr = err
			return
		}
		manager, err := c.sessionManager()
		if err != nil {
			c.apiErr = err
			return
		}
		client, err := api.New(cfg, manager, api.WithLogger(c.ensureLogger()))
		if err != nil {
			c.apiErr = err
			return
		}
		c.api = client
	})
	return c.api, c.apiErr
}

func (c *commandContext) eventsClient() (*events.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.eventsOnce.Do(func() {
		c.events = events.New(cfg, events.WithLogger(c.ensureLogger()))
	})
	return c.events, nil
}

func (c *commandContext) historyStore() (*history.Store, error) {
	c.historyOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.historyErr = err
			return
		}
		store, err := history.Open(cfg)
		if err != nil {
			c.historyErr = err
			return
		}
		c.history = store
	})
	return c.history, c.historyErr
}

// requireSession returns the session manager only when a credential is
// present.
func (c *commandContext) requireSession() (*session.Manager, error) {
	manager, err := c.sessionManager()
	if err != nil {
		return nil, err
	}
	if !manager.IsAuthenticated() {
		return nil, errNotSignedIn
	}
	return manager, nil
}
