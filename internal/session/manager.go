package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"tutorcast/internal/config"
	"tutorcast/internal/logging"
)

// ErrNotAuthenticated is returned when an operation needs a signed-in
// session and none exists.
var ErrNotAuthenticated = errors.New("not signed in")

// HTTPDoer abstracts the HTTP client used for auth calls.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Option customises Manager construction.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for auth endpoints.
func WithHTTPClient(client HTTPDoer) Option {
	return func(m *Manager) { m.httpClient = client }
}

// WithStore injects a custom persistence layer.
func WithStore(store Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithNotifier injects a custom companion notifier.
func WithNotifier(notifier Notifier) Option {
	return func(m *Manager) { m.notifier = notifier }
}

// WithLogger sets the logger used for best-effort failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager performs the auth flows against the backend and keeps the
// persisted session state current.
type Manager struct {
	baseURL    string
	httpClient HTTPDoer
	store      Store
	notifier   Notifier
	logger     *slog.Logger

	stateMu sync.RWMutex
	state   sessionState
}

// NewManager builds a Manager from configuration, loading any persisted
// session state.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	mgr := &Manager{
		baseURL:    cfg.Server.APIURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Server.RequestTimeout) * time.Second},
		store:      NewFileStore(cfg.Paths.StateDir),
		notifier:   NewNotifier(cfg),
		logger:     logging.Discard(),
	}

	for _, opt := range opts {
		opt(mgr)
	}
	if mgr.httpClient == nil {
		mgr.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if mgr.store == nil {
		mgr.store = NewFileStore(cfg.Paths.StateDir)
	}
	if mgr.notifier == nil {
		mgr.notifier = noopNotifier{}
	}
	if mgr.logger == nil {
		mgr.logger = logging.Discard()
	}

	state, err := mgr.store.Load()
	if err != nil {
		return nil, err
	}
	mgr.state = state

	return mgr, nil
}

// Token returns the current bearer credential, or the empty string when
// signed out.
func (m *Manager) Token() string {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state.AccessToken
}

// CurrentUser returns the stored identity record.
func (m *Manager) CurrentUser() (User, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.state.User == nil {
		return User{}, false
	}
	return *m.state.User, true
}

// IsAuthenticated reports whether a credential and identity are stored.
func (m *Manager) IsAuthenticated() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state.authenticated()
}

type credentialResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"accessToken"`
}

// Login signs in with email and password, persisting the returned
// credential and identity.
func (m *Manager) Login(ctx context.Context, email, password string) (User, error) {
	return m.establish(ctx, "/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, "login failed")
}

// Signup registers a new account and signs in, persisting the returned
// credential and identity.
func (m *Manager) Signup(ctx context.Context, email, password, name string) (User, error) {
	return m.establish(ctx, "/auth/signup", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, "signup failed")
}

func (m *Manager) establish(ctx context.Context, path string, body map[string]string, fallback string) (User, error) {
	resp, err := m.post(ctx, path, body, nil)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return User{}, serverError(resp, fallback)
	}

	var payload credentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return User{}, fmt.Errorf("decode auth response: %w", err)
	}
	if payload.AccessToken == "" || payload.User == nil {
		return User{}, errors.New("auth response missing credential or user")
	}

	m.stateMu.Lock()
	m.state = sessionState{
		AccessToken: payload.AccessToken,
		User:        payload.User,
		Cookies:     captureCookies(resp),
	}
	saveErr := m.store.Save(m.state)
	state := m.state
	m.stateMu.Unlock()
	if saveErr != nil {
		return User{}, saveErr
	}

	m.syncAuth(ctx, state)
	return *payload.User, nil
}

// RefreshToken obtains a new bearer credential using the stored refresh
// cookie. Any failure is treated as "session is no longer valid": local
// state is cleared before the error is returned.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	m.stateMu.RLock()
	cookies := append([]StoredCookie{}, m.state.Cookies...)
	m.stateMu.RUnlock()

	resp, err := m.post(ctx, "/auth/refresh", nil, cookies)
	if err != nil {
		m.clear(ctx)
		return "", fmt.Errorf("refresh credential: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := serverError(resp, "session refresh failed")
		m.clear(ctx)
		return "", err
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		m.clear(ctx)
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if payload.AccessToken == "" {
		m.clear(ctx)
		return "", errors.New("refresh response missing credential")
	}

	m.stateMu.Lock()
	m.state.AccessToken = payload.AccessToken
	if rotated := captureCookies(resp); len(rotated) > 0 {
		m.state.Cookies = rotated
	}
	saveErr := m.store.Save(m.state)
	state := m.state
	m.stateMu.Unlock()
	if saveErr != nil {
		return "", saveErr
	}

	m.syncAuth(ctx, state)
	return payload.AccessToken, nil
}

// Refresh implements the token source contract used by the API client.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	return m.RefreshToken(ctx)
}

// Logout notifies the server on a best-effort basis and clears local
// session state unconditionally.
func (m *Manager) Logout(ctx context.Context) error {
	m.stateMu.RLock()
	cookies := append([]StoredCookie{}, m.state.Cookies...)
	m.stateMu.RUnlock()

	if resp, err := m.post(ctx, "/auth/logout", nil, cookies); err != nil {
		m.logger.Debug("server logout failed", "error", err)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	return m.clear(ctx)
}

// ResetDebug carries the development-only reset payload returned by the
// forgot-password endpoint.
type ResetDebug struct {
	ResetToken string `json:"resetToken"`
	ResetLink  string `json:"resetLink"`
}

// RequestPasswordReset starts the password reset flow. The returned debug
// payload is only populated by non-production backends.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (*ResetDebug, error) {
	resp, err := m.post(ctx, "/auth/forgot-password", map[string]string{"email": email}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, serverError(resp, "password reset request failed")
	}

	var payload struct {
		Debug *ResetDebug `json:"debug"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode reset response: %w", err)
	}
	return payload.Debug, nil
}

// CompletePasswordReset finishes the reset flow with the emailed token.
func (m *Manager) CompletePasswordReset(ctx context.Context, email, token, newPassword string) error {
	resp, err := m.post(ctx, "/auth/reset-password", map[string]string{
		"email":       email,
		"token":       token,
		"newPassword": newPassword,
	}, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return serverError(resp, "password reset failed")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (m *Manager) post(ctx context.Context, path string, body map[string]string, cookies []StoredCookie) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	return resp, nil
}

// clear wipes local session state and mirrors the sign-out to the
// companion. Store failures are returned; companion failures only logged.
func (m *Manager) clear(ctx context.Context) error {
	m.stateMu.Lock()
	m.state = sessionState{}
	err := m.store.Clear()
	m.stateMu.Unlock()

	if syncErr := m.notifier.SyncLogout(ctx); syncErr != nil {
		m.logger.Debug("companion logout sync failed", "error", syncErr)
	}
	return err
}

func (m *Manager) syncAuth(ctx context.Context, state sessionState) {
	if state.User == nil {
		return
	}
	if err := m.notifier.SyncAuth(ctx, state.AccessToken, *state.User); err != nil {
		m.logger.Debug("companion auth sync failed", "error", err)
	}
}

func captureCookies(resp *http.Response) []StoredCookie {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return nil
	}
	stored := make([]StoredCookie, 0, len(cookies))
	for _, cookie := range cookies {
		stored = append(stored, StoredCookie{
			Name:    cookie.Name,
			Value:   cookie.Value,
			Path:    cookie.Path,
			Expires: cookie.Expires,
		})
	}
	return stored
}

func serverError(resp *http.Response, fallback string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return errors.New(payload.Error)
	}
	return fmt.Errorf("%s (status %d)", fallback, resp.StatusCode)
}
