package commands

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/devwatch/internal/config"
)

func parse(t *testing.T, cli *CLI, args ...string) *kong.Context {
	t.Helper()
	parser, err := kong.New(cli, kong.Name("devwatch"), kong.Vars{"version": "test"})
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return ctx
}

func TestParse_DevIsDefault(t *testing.T) {
	cli := &CLI{stderr: &bytes.Buffer{}}
	ctx := parse(t, cli, "--root", "backend", "--debounce", "300ms", "--schema-only")

	assert.Equal(t, "dev", ctx.Command())
	assert.Equal(t, "backend", cli.Dev.Root)
	assert.Equal(t, 300*time.Millisecond, cli.Dev.Debounce)
	assert.True(t, cli.Dev.SchemaOnly)

	ov := cli.Dev.overrides()
	assert.Equal(t, config.Overrides{Root: "backend", Debounce: 300 * time.Millisecond, SchemaOnly: true}, ov)
}

func TestParse_RunCommand(t *testing.T) {
	cli := &CLI{stderr: &bytes.Buffer{}}
	ctx := parse(t, cli, "-v", "run", "--stamp-file", "build/stamp.json")

	assert.Equal(t, "run", ctx.Command())
	assert.True(t, cli.Verbose)
	assert.Equal(t, "build/stamp.json", cli.Run.StampFile)
}

func TestAfterApply_ConfiguresLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	cli := &CLI{stderr: &buf}
	parse(t, cli, "-v", "--log-format", "json", "run")

	slog.Debug("probe line", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"probe line"`)
}

func TestApplyLogging_FlagsWinOverFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	cli := &CLI{stderr: &buf}
	logger := cli.applyLogging(config.LoggingConfig{Level: config.LogLevelError, Format: config.LogFormatText})
	logger.Warn("hidden")
	assert.Empty(t, buf.String())

	cli.Verbose = true
	logger = cli.applyLogging(config.LoggingConfig{Level: config.LogLevelError, Format: config.LogFormatText})
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestPrintConfig(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cli := &CLI{stderr: &bytes.Buffer{}}
	cmd := &PrintConfigCmd{WatchFlags: WatchFlags{Root: "functions"}, out: &out}
	require.NoError(t, cmd.Run(&Global{}, cli))

	yaml := out.String()
	assert.Contains(t, yaml, "root: functions")
	assert.Contains(t, yaml, "debounce: 200ms")
	assert.Equal(t, 2, strings.Count(yaml, "- kind:"))
}
