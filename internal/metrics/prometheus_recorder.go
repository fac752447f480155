package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration     *prom.HistogramVec
	taskResults      *prom.CounterVec
	pipelineDuration prom.Histogram
	pipelineOutcome  *prom.CounterVec
	changeEvents     *prom.CounterVec
	coalesced        prom.Counter
	running          prom.Gauge
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "devwatch",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual pipeline tasks",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "devwatch",
			Name:      "task_results_total",
			Help:      "Task result counts by outcome",
		}, []string{"kind", "result"}),
		pipelineDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "devwatch",
			Name:      "pipeline_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.DefBuckets,
		}),
		pipelineOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "devwatch",
			Name:      "pipeline_outcomes_total",
			Help:      "Pipeline runs by final status",
		}, []string{"outcome"}),
		changeEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "devwatch",
			Name:      "change_events_total",
			Help:      "Filesystem change events seen by the watcher",
		}, []string{"result"}),
		coalesced: prom.NewCounter(prom.CounterOpts{
			Namespace: "devwatch",
			Name:      "triggers_coalesced_total",
			Help:      "Rebuild triggers folded into an already queued rebuild",
		}),
		running: prom.NewGauge(prom.GaugeOpts{
			Namespace: "devwatch",
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is active",
		}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.pipelineDuration, pr.pipelineOutcome, pr.changeEvents, pr.coalesced, pr.running)
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(kind string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(kind string, result ResultLabel) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(kind, string(result)).Inc()
}

func (p *PrometheusRecorder) ObservePipelineDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.pipelineDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPipelineOutcome(result ResultLabel) {
	if p == nil {
		return
	}
	p.pipelineOutcome.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncChangeEvent(accepted bool) {
	if p == nil {
		return
	}
	res := "ignored"
	if accepted {
		res = "accepted"
	}
	p.changeEvents.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncTriggerCoalesced() {
	if p == nil {
		return
	}
	p.coalesced.Inc()
}

func (p *PrometheusRecorder) SetRunning(running bool) {
	if p == nil {
		return
	}
	if running {
		p.running.Set(1)
		return
	}
	p.running.Set(0)
}

// Handler returns an http.Handler that serves the metrics in reg.
func Handler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes reg on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, reg *prom.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
