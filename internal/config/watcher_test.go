package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const watcherYAML = `
server:
  log_level: info
tenants:
  - id: t1
    api_key: key-1
    active: true
`

const watcherYAMLUpdated = `
server:
  log_level: debug
tenants:
  - id: t1
    api_key: key-1
    active: false
`

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// Nudge mtime so the poll's quick check sees the change even on coarse
	// filesystem clocks.
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

// ─── TestWatcher_DetectsChange ───

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aikyo.yaml")
	writeConfig(t, path, watcherYAML)

	var mu sync.Mutex
	var gotOld, gotNew *Config
	changed := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(old, new *Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
		changed <- struct{}{}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Server.LogLevel != LogInfo {
		t.Fatalf("initial log level = %q", w.Current().Server.LogLevel)
	}

	writeConfig(t, path, watcherYAMLUpdated)
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("change not detected")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld.Server.LogLevel != LogInfo || gotNew.Server.LogLevel != LogDebug {
		t.Errorf("callback got %q -> %q", gotOld.Server.LogLevel, gotNew.Server.LogLevel)
	}
	if gotNew.Tenants[0].Active {
		t.Error("tenant deactivation not picked up")
	}
	if w.Current() != gotNew {
		t.Error("Current() does not return the reloaded config")
	}
}

// ─── TestWatcher_KeepsOldConfigOnInvalidFile ───

func TestWatcher_KeepsOldConfigOnInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aikyo.yaml")
	writeConfig(t, path, watcherYAML)

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "server:\n  log_level: loud\n")
	time.Sleep(100 * time.Millisecond)

	if w.Current().Server.LogLevel != LogInfo {
		t.Errorf("invalid reload replaced config: %q", w.Current().Server.LogLevel)
	}
}

// ─── TestWatcher_InitialLoadFailure ───

func TestWatcher_InitialLoadFailure(t *testing.T) {
	t.Parallel()

	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("missing file accepted")
	}
}
