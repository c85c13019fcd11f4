package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "teadocs"

// ServerStates lists the dev-server states exported as a one-hot gauge.
var ServerStates = []string{"idle", "serving", "rebuilding"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration *prom.HistogramVec
	buildDuration prom.Histogram
	buildOutcome  *prom.CounterVec
	pagesCompiled prom.Counter
	cacheHits     prom.Counter
	rebuilds      *prom.CounterVec
	reloads       prom.Counter
	clients       prom.Gauge
	serverState   *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers the collectors on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		pagesCompiled: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pages_compiled_total",
			Help:      "Pages compiled (cache misses)",
		}),
		cacheHits: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "compile_cache_hits_total",
			Help:      "Compiled bodies served from cache",
		}),
		rebuilds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dev_rebuilds_total",
			Help:      "Dev server rebuild passes by kind",
		}, []string{"kind"}),
		reloads: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "livereload_broadcasts_total",
			Help:      "Reload notifications sent to browsers",
		}),
		clients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "livereload_clients",
			Help:      "Connected live reload clients",
		}),
		serverState: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "dev_server_state",
			Help:      "Current dev server state (1 for the active state)",
		}, []string{"state"}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.buildOutcome, pr.pagesCompiled,
		pr.cacheHits, pr.rebuilds, pr.reloads, pr.clients, pr.serverState)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome OutcomeLabel) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) AddPagesCompiled(n int) {
	if n > 0 {
		p.pagesCompiled.Add(float64(n))
	}
}

func (p *PrometheusRecorder) AddCacheHits(n int) {
	if n > 0 {
		p.cacheHits.Add(float64(n))
	}
}

func (p *PrometheusRecorder) IncRebuild(kind RebuildKind) {
	p.rebuilds.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusRecorder) IncReloadBroadcast() { p.reloads.Inc() }

func (p *PrometheusRecorder) SetLiveReloadClients(n int) { p.clients.Set(float64(n)) }

func (p *PrometheusRecorder) SetServerState(state string) {
	for _, s := range ServerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		p.serverState.WithLabelValues(s).Set(v)
	}
}
