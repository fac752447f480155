package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveTaskDuration("convex", 150*time.Millisecond)
	pr.IncTaskResult("convex", ResultSuccess)
	pr.IncTaskResult("schema", ResultFailed)
	pr.ObservePipelineDuration(500 * time.Millisecond)
	pr.IncPipelineOutcome(ResultCancelled)
	pr.IncChangeEvent(true)
	pr.IncChangeEvent(false)
	pr.IncChangeEvent(false)
	pr.IncTriggerCoalesced()
	pr.SetRunning(true)

	if got := testutil.ToFloat64(pr.taskResults.WithLabelValues("schema", string(ResultFailed))); got != 1 {
		t.Fatalf("schema failed count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pr.changeEvents.WithLabelValues("ignored")); got != 2 {
		t.Fatalf("ignored events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(pr.running); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncTriggerCoalesced()
	pr.SetRunning(false)
	pr.IncPipelineOutcome(ResultSuccess)
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncPipelineOutcome(ResultSuccess)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "devwatch_pipeline_outcomes_total") {
		t.Fatalf("metrics body missing pipeline outcomes:\n%s", rec.Body.String())
	}
}

var _ Recorder = NoopRecorder{}
var _ Recorder = (*PrometheusRecorder)(nil)
