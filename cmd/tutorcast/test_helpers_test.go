package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// methodMux accepts the same "METHOD /path" patterns as Go 1.22's
// http.ServeMux so the test backends can route by method on Go 1.21.
type methodMux struct {
	handlers map[string]map[string]http.HandlerFunc
}

func newMethodMux() *methodMux {
	return &methodMux{handlers: map[string]map[string]http.HandlerFunc{}}
}

func (m *methodMux) HandleFunc(pattern string, fn func(http.ResponseWriter, *http.Request)) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		method, path = "", pattern
	}
	if m.handlers[path] == nil {
		m.handlers[path] = map[string]http.HandlerFunc{}
	}
	m.handlers[path][method] = fn
}

func (m *methodMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	byMethod, ok := m.handlers[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if fn, ok := byMethod[r.Method]; ok {
		fn(w, r)
		return
	}
	if fn, ok := byMethod[""]; ok {
		fn(w, r)
		return
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

type cliTestEnv struct {
	configPath string
	stateDir   string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, apiURL string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("TUTORCAST_CONFIG", "")
	t.Setenv("TUTORCAST_API_URL", "")
	t.Setenv("TUTORCAST_EVENTS_URL", "")

	stateDir := filepath.Join(base, "state")
	logDir := filepath.Join(base, "logs")
	configPath := filepath.Join(homeDir, ".config", "tutorcast", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if apiURL == "" {
		apiURL = "http://localhost:3000/api"
	}
	content := fmt.Sprintf(
		"[server]\napi_url = %q\nevents_url = %q\n\n[paths]\nstate_dir = %q\nlog_dir = %q\n",
		apiURL, "ws://localhost:3000/ws", stateDir, logDir,
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{
		configPath: configPath,
		stateDir:   stateDir,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
