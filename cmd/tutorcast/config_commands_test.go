package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigShowAndInit(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "Config path:")
	requireContains(t, out, "http://localhost:3000/api")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// second init without --overwrite refuses
	if _, _, err = runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatalf("config init overwrote existing file")
	}
}
