package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/devwatch/internal/coordinator"
	"git.home.luguber.info/inful/devwatch/internal/pipeline"
)

type fakePublisher struct {
	events []RunEvent
	err    error
	ctxErr error
}

func (f *fakePublisher) Publish(ctx context.Context, ev RunEvent) error {
	f.ctxErr = ctx.Err()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

func failedReport() coordinator.Report {
	return coordinator.Report{
		Session: "8b0c",
		RunID:   4,
		Trigger: "users.ts",
		Started: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Result: pipeline.Result{
			Status:   pipeline.StatusFailed,
			Step:     "convex",
			Err:      errors.New("exit status 1"),
			Executed: []string{"convex"},
			Duration: 1500 * time.Millisecond,
		},
	}
}

func TestNewRunEvent_JSON(t *testing.T) {
	data, err := json.Marshal(NewRunEvent(failedReport()))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, "convex", got["step"])
	assert.Equal(t, "exit status 1", got["error"])
	assert.Equal(t, float64(4), got["run_id"])
	assert.Equal(t, float64(1500), got["duration_ms"])
	assert.Equal(t, "2026-03-01T12:00:00Z", got["started_at"])
}

func TestNewRunEvent_SuccessOmitsError(t *testing.T) {
	ev := NewRunEvent(coordinator.Report{Result: pipeline.Result{Status: pipeline.StatusSucceeded}})
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)
	assert.Contains(t, string(data), `"executed":[]`)
}

func TestObserver_PublishesWithLiveContext(t *testing.T) {
	pub := &fakePublisher{}
	obs := &Observer{Publisher: pub}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	obs.RunSettled(ctx, failedReport())

	require.Len(t, pub.events, 1)
	assert.NoError(t, pub.ctxErr, "shutdown must not abort the final publish")
}

func TestObserver_LogsPublishFailure(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{err: errors.New("no responders")}
	obs := &Observer{Publisher: pub, Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	obs.RunSettled(t.Context(), failedReport())
	assert.Contains(t, buf.String(), "Failed to publish run event")
}

func TestNewNATSPublisher_Errors(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:4222", "")
	require.Error(t, err)

	_, err = NewNATSPublisher("nats://127.0.0.1:1", "devwatch.runs")
	require.Error(t, err)
	assert.NoError(t, Noop{}.Publish(t.Context(), RunEvent{}))
}
