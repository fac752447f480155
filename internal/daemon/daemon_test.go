//go:build unix

package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/devwatch/internal/config"
	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
	"git.home.luguber.info/inful/devwatch/internal/pipeline"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeSource struct {
	events chan string
	errs   chan error
	used   atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan string, 8), errs: make(chan error, 1)}
}

func (f *fakeSource) Events() <-chan string { f.used.Store(true); return f.events }
func (f *fakeSource) Errors() <-chan error  { return f.errs }
func (f *fakeSource) Close() error          { return nil }

func testConfig(root string, tasks ...config.TaskConfig) *config.Config {
	probe := false
	return &config.Config{
		Watch:   config.WatchConfig{Root: root, Debounce: 20 * time.Millisecond},
		Runtime: config.RuntimeConfig{Binary: "sh", Probe: &probe, ShutdownGrace: 2 * time.Second},
		Tasks:   tasks,
	}
}

func appendTask(kind, logFile string) config.TaskConfig {
	return config.TaskConfig{Kind: kind, Label: "Running " + kind, Command: "echo " + kind + " >> '" + logFile + "'"}
}

func newTestDaemon(t *testing.T, cfg *config.Config, src *fakeSource, extra ...Option) (*Daemon, *syncBuffer) {
	t.Helper()
	logs := &syncBuffer{}
	opts := []Option{
		WithLogger(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithStdio(nil, nil, nil),
		WithEventSource(src),
	}
	d, err := New(cfg, append(opts, extra...)...)
	require.NoError(t, err)
	return d, logs
}

func lines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func TestRun_InitialFailureDoesNotStartWatcher(t *testing.T) {
	root := t.TempDir()
	src := newFakeSource()
	cfg := testConfig(root, config.TaskConfig{Kind: "upload", Label: "Uploading", Command: "exit 1"})
	d, logs := newTestDaemon(t, cfg, src)

	err := d.Run(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryPipeline))
	assert.False(t, src.used.Load(), "watcher must not start after a failed initial run")
	assert.Contains(t, logs.String(), "Not starting watcher")
	assert.NotContains(t, logs.String(), pipeline.DefaultReadyMessage)
}

func TestRun_RebuildsOnChangeAndShutsDownCleanly(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "runs.log")
	stamp := filepath.Join(root, "_build", "stamp.json")
	src := newFakeSource()

	cfg := testConfig(root, appendTask("upload", out), appendTask("schema", out))
	cfg.StampFile = stamp
	d, logs := newTestDaemon(t, cfg, src)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return len(lines(t, out)) == 2 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return src.used.Load() }, 2*time.Second, 10*time.Millisecond)

	src.events <- "users.ts"
	src.events <- "messages.ts"
	require.Eventually(t, func() bool { return len(lines(t, out)) == 4 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"upload", "schema", "upload", "schema"}, lines(t, out))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(stamp)
		if err != nil {
			return false
		}
		var s pipeline.Stamp
		return json.Unmarshal(data, &s) == nil && s.Trigger == "messages.ts" && s.RunID == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Contains(t, logs.String(), pipeline.DefaultReadyMessage)
	assert.Equal(t, uint64(2), d.Coordinator().Stats().Succeeded)
}

func TestRun_ShutdownInterruptsActiveRun(t *testing.T) {
	src := newFakeSource()
	cfg := testConfig(t.TempDir(), config.TaskConfig{Kind: "slow", Label: "Slow", Command: "sleep", Args: []string{"30"}})
	d, logs := newTestDaemon(t, cfg, src)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return len(d.runner.Running()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err, "interrupting the initial run is a graceful shutdown")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.False(t, src.used.Load())
	assert.NotContains(t, logs.String(), "Task failed")
}

func TestRun_WatcherStartFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	cfg := testConfig(root, config.TaskConfig{Kind: "noop", Label: "Noop", Command: "true"})
	d, _ := newTestDaemon(t, cfg, newFakeSource())

	err := d.Run(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryWatch))
}

func TestRun_WatcherFailureEndsRun(t *testing.T) {
	root := t.TempDir()
	src := newFakeSource()
	cfg := testConfig(root, config.TaskConfig{Kind: "noop", Label: "Noop", Command: "true"})
	d, _ := newTestDaemon(t, cfg, src)

	done := make(chan error, 1)
	go func() { done <- d.Run(t.Context()) }()

	require.Eventually(t, func() bool { return src.used.Load() }, 5*time.Second, 10*time.Millisecond)
	src.errs <- errors.New("too many open files")

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryWatch))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after watcher failure")
	}
}

func TestRun_ProbeFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "runs.log")
	cfg := testConfig(t.TempDir(), appendTask("upload", out))
	probe := true
	cfg.Runtime.Probe = &probe
	cfg.Runtime.Binary = "bun"

	d, logs := newTestDaemon(t, cfg, newFakeSource(), WithProbe(func(string) error {
		return errors.New("executable file not found in $PATH")
	}))

	err := d.Run(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryRuntime))
	assert.Empty(t, lines(t, out))
	assert.Contains(t, logs.String(), "Runtime not found")
}

func TestRunOnce(t *testing.T) {
	out := filepath.Join(t.TempDir(), "runs.log")
	d, _ := newTestDaemon(t, testConfig(t.TempDir(), appendTask("upload", out)), newFakeSource())
	require.NoError(t, d.RunOnce(t.Context()))
	assert.Equal(t, []string{"upload"}, lines(t, out))

	failing := testConfig(t.TempDir(), config.TaskConfig{Kind: "upload", Label: "Uploading", Command: "exit 2"})
	d, _ = newTestDaemon(t, failing, newFakeSource())
	err := d.RunOnce(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryPipeline))
}

func TestIgnoreRule_SkipsStampInsideRoot(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.StampFile = filepath.Join(root, "build", "stamp.json")
	cfg.Watch.Ignore = []string{"*.log"}
	d, _ := newTestDaemon(t, cfg, newFakeSource())

	rule, err := d.ignoreRule()
	require.NoError(t, err)
	assert.True(t, rule("build/stamp.json", false))
	assert.True(t, rule("debug.log", false))
	assert.True(t, rule("_generated/api.js", false))
	assert.False(t, rule("build/other.json", false))
}

func TestTaskFromConfig(t *testing.T) {
	shell := taskFromConfig(config.TaskConfig{Kind: "k", Command: "npm run build", Env: map[string]string{"A": "1"}})
	assert.Equal(t, "npm run build", shell.Shell)
	assert.Nil(t, shell.Argv)
	assert.Equal(t, []string{"A=1"}, shell.Env)

	direct := taskFromConfig(config.TaskConfig{Kind: "k", Command: "bun", Args: []string{"x", "convex"}})
	assert.Empty(t, direct.Shell)
	assert.Equal(t, []string{"bun", "x", "convex"}, direct.Argv)
}
