package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWithoutAnyFiles(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, DefaultRoot, cfg.Watch.Root)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
	assert.True(t, cfg.Watch.IsRecursive())
	assert.True(t, cfg.Runtime.ShouldProbe())
	assert.Equal(t, "bun", cfg.Runtime.Binary)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)

	require.Len(t, cfg.Tasks, 2)
	assert.Equal(t, UploadKind, cfg.Tasks[0].Kind)
	assert.Equal(t, []string{"bun", "x", "convex", "dev", "--once"}, cfg.Tasks[0].Argv())
	assert.Equal(t, SchemaKind, cfg.Tasks[1].Kind)
	assert.Equal(t, []string{"bun", "run", DefaultGenerator, "--convexDir", "convex"}, cfg.Tasks[1].Argv())
}

func TestLoad_ConvexProject(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "convex.json", `{"functions": "src/backend", "codegen": {"fileType": "ts"}}`)

	cfg, err := Load("", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "src/backend", cfg.Watch.Root)
	assert.Equal(t, DefaultGeneratorTS, cfg.Runtime.Generator)
	assert.Contains(t, cfg.Tasks[1].Args, "src/backend")
	assert.Contains(t, cfg.Tasks[1].Args, DefaultGeneratorTS)
}

func TestLoad_MalformedConvexProjectIsIgnored(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "convex.json", `{"functions": `)

	cfg, err := Load("", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRoot, cfg.Watch.Root)
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	const key = "DEVWATCH_TEST_FUNCTIONS_DIR"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	writeFile(t, dir, ".env", key+"=app/convex\n")
	writeFile(t, dir, DefaultFile, `
watch:
  root: ${DEVWATCH_TEST_FUNCTIONS_DIR}
  debounce: 350ms
  recursive: false
  ignore: ["*.log"]
tasks:
  - kind: lint
    command: npm run lint
    success_message: Lint clean
    env:
      B: "2"
      A: "1"
schedule:
  interval: 5m
logging:
  level: DEBUG
`)

	cfg, err := Load("", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "app/convex", cfg.Watch.Root)
	assert.Equal(t, 350*time.Millisecond, cfg.Watch.Debounce)
	assert.False(t, cfg.Watch.IsRecursive())
	assert.Equal(t, []string{"*.log"}, cfg.Watch.Ignore)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.Interval)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)

	require.Len(t, cfg.Tasks, 1)
	task := cfg.Tasks[0]
	assert.Equal(t, "Running lint...", task.Label)
	assert.Nil(t, task.Argv())
	assert.Equal(t, []string{"A=1", "B=2"}, task.Environ())
}

func TestLoad_OverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "custom.yaml", "watch:\n  root: from-file\n  debounce: 1s\n")

	cfg, err := Load(path, Overrides{
		Root:          "from-flag",
		Debounce:      50 * time.Millisecond,
		SchemaOnly:    true,
		MetricsListen: "127.0.0.1:9464",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.Watch.Root)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
	require.Len(t, cfg.Tasks, 1)
	assert.Equal(t, SchemaKind, cfg.Tasks[0].Kind)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := Load(filepath.Join(dir, "missing.yaml"), Overrides{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	path := writeFile(t, dir, "unknown.yaml", "watch:\n  rooot: x\n")
	_, err = Load(path, Overrides{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
		{"no tasks", func(c *Config) { c.Tasks = nil }, "at least one task"},
		{"duplicate kind", func(c *Config) {
			c.Tasks = append(c.Tasks, TaskConfig{Kind: SchemaKind, Command: "true"})
		}, `duplicate kind "schema"`},
		{"empty kind", func(c *Config) { c.Tasks[0].Kind = "" }, "tasks[0].kind"},
		{"empty command", func(c *Config) { c.Tasks[1].Command = " " }, "tasks[1].command"},
		{"short interval", func(c *Config) { c.Schedule.Interval = 10 * time.Millisecond }, "schedule.interval"},
		{"bad listen", func(c *Config) { c.Metrics.Listen = "9464" }, "metrics.listen"},
		{"missing subject", func(c *Config) { c.Notify.NATSURL = "nats://localhost:4222"; c.Notify.Subject = "" }, "notify.subject"},
	}

	require.NoError(t, Validate(valid()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalizeLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel(" Warning "))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("chatty"))
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("JSON"))
}
