package metrics

import "time"

// ResultLabel enumerates task and pipeline result categories for counters.
type ResultLabel string

const (
	ResultSuccess   ResultLabel = "success"
	ResultFailed    ResultLabel = "failed"
	ResultCancelled ResultLabel = "cancelled"
)

// Recorder defines observability hooks for pipeline runs, tasks and the
// change watcher.
type Recorder interface {
	ObserveTaskDuration(kind string, d time.Duration)
	IncTaskResult(kind string, result ResultLabel)
	ObservePipelineDuration(d time.Duration)
	IncPipelineOutcome(result ResultLabel)
	IncChangeEvent(accepted bool)
	IncTriggerCoalesced()
	SetRunning(running bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)         {}
func (NoopRecorder) ObservePipelineDuration(time.Duration)     {}
func (NoopRecorder) IncPipelineOutcome(ResultLabel)            {}
func (NoopRecorder) IncChangeEvent(bool)                       {}
func (NoopRecorder) IncTriggerCoalesced()                      {}
func (NoopRecorder) SetRunning(bool)                           {}
