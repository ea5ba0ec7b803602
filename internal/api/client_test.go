package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tutorcast/internal/testsupport"
)

type tokenStub struct {
	token      string
	next       string
	refreshErr error
	refreshes  int
}

func (s *tokenStub) Token() string { return s.token }

func (s *tokenStub) Refresh(context.Context) (string, error) {
	s.refreshes++
	if s.refreshErr != nil {
		s.token = ""
		return "", s.refreshErr
	}
	s.token = s.next
	return s.next, nil
}

func newTestClient(t *testing.T, serverURL string, tokens TokenSource) *Client {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIURL(serverURL+"/api"))
	client, err := New(cfg, tokens)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestUnauthorizedTriggersSingleRefreshAndRetry(t *testing.T) {
	var tokensSeen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		tokensSeen = append(tokensSeen, auth)
		if auth != "Bearer tok-new" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "token expired"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"recording": map[string]string{"id": "rec-1", "status": "uploaded"},
		})
	}))
	defer server.Close()

	tokens := &tokenStub{token: "tok-old", next: "tok-new"}
	client := newTestClient(t, server.URL, tokens)

	rec, err := client.Recording(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("Recording: %v", err)
	}
	if rec.ID != "rec-1" {
		t.Fatalf("rec.ID = %q", rec.ID)
	}
	if tokens.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", tokens.refreshes)
	}
	if len(tokensSeen) != 2 || tokensSeen[0] != "Bearer tok-old" || tokensSeen[1] != "Bearer tok-new" {
		t.Fatalf("tokensSeen = %v, want old then new", tokensSeen)
	}
}

func TestRefreshFailureSurfacesOriginalUnauthorized(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "session invalid"})
	}))
	defer server.Close()

	tokens := &tokenStub{token: "tok-old", refreshErr: errors.New("refresh rejected")}
	client := newTestClient(t, server.URL, tokens)

	_, err := client.Recording(context.Background(), "rec-1")
	if err == nil {
		t.Fatalf("Recording succeeded, want error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "session invalid" {
		t.Fatalf("error = %+v, want original 401 text", apiErr)
	}
	if tokens.refreshes != 1 {
		t.Fatalf("refreshes = %d, want exactly 1", tokens.refreshes)
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1 (no retry after failed refresh)", requests)
	}
}

func TestNoRefreshLoopOnRepeatedUnauthorized(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "still expired"})
	}))
	defer server.Close()

	tokens := &tokenStub{token: "tok-old", next: "tok-new"}
	client := newTestClient(t, server.URL, tokens)

	_, err := client.Recording(context.Background(), "rec-1")
	if err == nil {
		t.Fatalf("Recording succeeded, want error")
	}
	if tokens.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", tokens.refreshes)
	}
	if requests != 2 {
		t.Fatalf("requests = %d, want 2 (original + single retry)", requests)
	}
}

func TestServerErrorTextSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "recording is still processing"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &tokenStub{token: "tok"})

	err := client.DeleteRecording(context.Background(), "rec-1")
	if err == nil || err.Error() != "recording is still processing" {
		t.Fatalf("error = %v, want server text", err)
	}
}

func TestHealthSkipsAPIPrefix(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &tokenStub{token: "tok"})

	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if status.Status != "ok" {
		t.Fatalf("status = %q", status.Status)
	}
	if gotPath != "/health" {
		t.Fatalf("path = %q, want /health outside the /api prefix", gotPath)
	}
	if gotAuth != "" {
		t.Fatalf("health sent Authorization %q, want none", gotAuth)
	}
}

func TestRequestCarriesRequestID(t *testing.T) {
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		_ = json.NewEncoder(w).Encode(map[string]any{"recording": map[string]string{"id": "rec-1"}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &tokenStub{token: "tok"})
	if _, err := client.Recording(context.Background(), "rec-1"); err != nil {
		t.Fatalf("Recording: %v", err)
	}
	if gotID == "" {
		t.Fatalf("X-Request-ID missing")
	}
}
