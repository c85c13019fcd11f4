package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("compile", 150*time.Millisecond)
	pr.ObserveBuildDuration(500 * time.Millisecond)
	pr.IncBuildOutcome(OutcomeSuccess)
	pr.AddPagesCompiled(3)
	pr.IncRebuild(RebuildIncremental)
	pr.SetServerState("serving")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
		if mf.GetName() == "teadocs_dev_server_state" {
			for _, m := range mf.GetMetric() {
				want := 0.0
				if m.GetLabel()[0].GetValue() == "serving" {
					want = 1
				}
				require.Equal(t, want, m.GetGauge().GetValue())
			}
		}
	}
	require.True(t, found["teadocs_pages_compiled_total"])
	require.True(t, found["teadocs_build_outcomes_total"])
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncReloadBroadcast()

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "teadocs_livereload_broadcasts_total 1")
}

func TestOrNoop(t *testing.T) {
	require.Equal(t, NoopRecorder{}, OrNoop(nil))
	var r Recorder = NoopRecorder{}
	r.IncRebuild(RebuildFull)
}
