package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/agora/internal/config"
)

const watcherValidYAML = minimalYAML + `
server:
  log_level: info
`

const watcherUpdatedYAML = minimalYAML + `
server:
  log_level: debug
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// writeFile writes content and pushes the mtime forward so every write is
// visible to the watcher regardless of filesystem timestamp resolution.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
	mtime := time.Now().Add(time.Duration(writeSeq.Add(1)) * time.Second)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

var writeSeq atomic.Int64

// runWatcher starts w.Run and stops it when the test ends.
func runWatcher(t *testing.T, w *config.Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v", err)
		}
	})
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherInvalidYAML)

	if _, err := config.NewWatcher(cfgPath, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var mu sync.Mutex
	var gotOld, gotNew *config.Config
	called := make(chan struct{}, 1)

	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runWatcher(t, w)

	writeFile(t, cfgPath, watcherUpdatedYAML)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld.Server.LogLevel != config.LogInfo || gotNew.Server.LogLevel != config.LogDebug {
		t.Errorf("callback got %q -> %q", gotOld.Server.LogLevel, gotNew.Server.LogLevel)
	}
	if d := config.Diff(gotOld, gotNew); !d.LogLevelChanged || len(d.RestartRequired) != 0 {
		t.Errorf("diff = %+v", d)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("Current() log_level = %q", w.Current().Server.LogLevel)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var calls atomic.Int32
	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		calls.Add(1)
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runWatcher(t, w)

	writeFile(t, cfgPath, watcherInvalidYAML)
	time.Sleep(200 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("callback invoked %d times for invalid config", n)
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("Current() changed to %q", w.Current().Server.LogLevel)
	}
}

func TestWatcher_TouchWithoutChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var calls atomic.Int32
	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		calls.Add(1)
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runWatcher(t, w)

	writeFile(t, cfgPath, watcherValidYAML)
	time.Sleep(200 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("callback invoked %d times for identical content", n)
	}
}
