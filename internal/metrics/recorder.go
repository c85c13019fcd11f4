package metrics

import "time"

// OutcomeLabel enumerates build outcomes.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeWarning  OutcomeLabel = "warning"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// RebuildKind labels dev-server rebuild passes.
type RebuildKind string

const (
	RebuildIncremental RebuildKind = "incremental"
	RebuildFull        RebuildKind = "full"
	RebuildSuperseded  RebuildKind = "superseded"
)

// Recorder receives build and dev-server observations.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome OutcomeLabel)
	AddPagesCompiled(n int)
	AddCacheHits(n int)
	IncRebuild(kind RebuildKind)
	IncReloadBroadcast()
	SetLiveReloadClients(n int)
	SetServerState(state string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncBuildOutcome(OutcomeLabel)               {}
func (NoopRecorder) AddPagesCompiled(int)                       {}
func (NoopRecorder) AddCacheHits(int)                           {}
func (NoopRecorder) IncRebuild(RebuildKind)                     {}
func (NoopRecorder) IncReloadBroadcast()                        {}
func (NoopRecorder) SetLiveReloadClients(int)                   {}
func (NoopRecorder) SetServerState(string)                      {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
