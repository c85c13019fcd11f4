// Package metrics records build and dev-server metrics.
//
// Components receive a Recorder through their options and default to
// NoopRecorder, so metrics cost nothing unless the dev server enables the
// Prometheus endpoint:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	mux.Handle("/metrics", metrics.HTTPHandler(reg))
package metrics
