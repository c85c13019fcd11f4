package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/retry"
)

func TestNew_NoURLIsNoop(t *testing.T) {
	n, err := New(config.NotifyConfig{})
	require.NoError(t, err)
	require.IsType(t, Noop{}, n)
	require.NoError(t, n.Notify(t.Context(), Event{Type: EventBuildCompleted}))
	require.NoError(t, n.Close())
}

func TestNewNATS_UnreachableIsIOError(t *testing.T) {
	_, err := NewNATS("nats://127.0.0.1:1", "teadocs.events")
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryIO))
}

func TestEventPayload(t *testing.T) {
	ev := Event{
		Type:       EventRebuildCompleted,
		BuildID:    "b1",
		Time:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Outcome:    "success",
		Pages:      3,
		Routes:     []string{"guide/intro"},
		DurationMS: 12,
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"rebuild.completed","build_id":"b1","time":"2024-01-01T00:00:00Z","outcome":"success","pages":3,"routes":["guide/intro"],"errors":0,"warnings":0,"duration_ms":12}`, string(data))
}

type flakyConn struct {
	failures  int
	published [][]byte
	drained   bool
}

func (c *flakyConn) Publish(_ string, data []byte) error {
	if c.failures > 0 {
		c.failures--
		return stderrors.New("nats: connection closed")
	}
	c.published = append(c.published, data)
	return nil
}

func (c *flakyConn) FlushWithContext(context.Context) error { return nil }
func (c *flakyConn) Drain() error                           { c.drained = true; return nil }
func (c *flakyConn) Close()                                 {}

func TestNATS_RetriesPublish(t *testing.T) {
	fc := &flakyConn{failures: 2}
	policy := retry.FromNotify(config.NotifyConfig{Backoff: config.BackoffFixed, RetryDelay: time.Millisecond})
	n := &NATS{conn: fc, subject: "teadocs.events", policy: policy}

	require.NoError(t, n.Notify(t.Context(), Event{Type: EventBuildCompleted, BuildID: "b1"}))
	require.Len(t, fc.published, 1)
	require.Contains(t, string(fc.published[0]), `"build_id":"b1"`)

	require.NoError(t, n.Close())
	require.True(t, fc.drained)
}

func TestNATS_GivesUpAfterRetries(t *testing.T) {
	fc := &flakyConn{failures: 10}
	policy := retry.FromNotify(config.NotifyConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	n := &NATS{conn: fc, subject: "teadocs.events", policy: policy}

	err := n.Notify(t.Context(), Event{Type: EventBuildCompleted})
	require.Error(t, err)
	require.Equal(t, 8, fc.failures)
}
