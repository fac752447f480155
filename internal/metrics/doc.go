// Package metrics provides the observability hooks for devwatch runs.
//
// Components receive a Recorder and default to NoopRecorder, so metrics can
// be switched on without nil checks at call sites:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	p := pipeline.New(steps, pipeline.WithRecorder(recorder))
//
// When metrics.listen is configured the daemon serves the registry on
// /metrics through Handler.
package metrics
