package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tutorcast/internal/config"
)

// Notifier mirrors credential changes to the capture extension. All
// implementations are best-effort collaborators: callers log failures and
// never propagate them.
type Notifier interface {
	SyncAuth(ctx context.Context, token string, user User) error
	SyncLogout(ctx context.Context) error
}

// NewNotifier builds a Notifier from configuration. When no companion
// endpoint is configured a noop implementation is returned.
func NewNotifier(cfg *config.Config) Notifier {
	if cfg == nil || cfg.Companion.Endpoint == "" {
		return noopNotifier{}
	}

	timeout := time.Duration(cfg.Companion.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &httpNotifier{
		endpoint:    cfg.Companion.Endpoint,
		extensionID: cfg.Companion.ExtensionID,
		client:      &http.Client{Timeout: timeout},
	}
}

type noopNotifier struct{}

func (noopNotifier) SyncAuth(context.Context, string, User) error { return nil }
func (noopNotifier) SyncLogout(context.Context) error             { return nil }

type httpNotifier struct {
	endpoint    string
	extensionID string
	client      *http.Client
}

type companionUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type companionMessage struct {
	Type        string         `json:"type"`
	ExtensionID string         `json:"extensionId"`
	Token       string         `json:"token,omitempty"`
	User        *companionUser `json:"user,omitempty"`
	Logout      bool           `json:"logout,omitempty"`
}

func (n *httpNotifier) SyncAuth(ctx context.Context, token string, user User) error {
	return n.send(ctx, companionMessage{
		Type:        "AUTH_SYNC",
		ExtensionID: n.extensionID,
		Token:       token,
		User:        &companionUser{Name: user.Name, Email: user.Email},
	})
}

func (n *httpNotifier) SyncLogout(ctx context.Context) error {
	return n.send(ctx, companionMessage{
		Type:        "AUTH_SYNC",
		ExtensionID: n.extensionID,
		Logout:      true,
	})
}

func (n *httpNotifier) send(ctx context.Context, msg companionMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode companion message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build companion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify companion: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("companion returned %d", resp.StatusCode)
	}
	return nil
}
