// Package notify publishes build and rebuild events to external listeners.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
	"git.home.luguber.info/inful/teadocs/internal/retry"
)

// EventType names an event.
type EventType string

const (
	EventBuildCompleted   EventType = "build.completed"
	EventRebuildCompleted EventType = "rebuild.completed"
)

// Event is the JSON payload published for every completed build or rebuild.
type Event struct {
	Type       EventType `json:"type"`
	BuildID    string    `json:"build_id"`
	Time       time.Time `json:"time"`
	Outcome    string    `json:"outcome"`
	Pages      int       `json:"pages"`
	Routes     []string  `json:"routes,omitempty"`
	Errors     int       `json:"errors"`
	Warnings   int       `json:"warnings"`
	DurationMS int64     `json:"duration_ms"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }
func (Noop) Close() error                        { return nil }

// conn is the part of *nats.Conn the notifier uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
	Close()
}

// NATS publishes events on a core NATS subject.
type NATS struct {
	conn    conn
	subject string
	policy  retry.Policy
}

// New returns a NATS notifier when cfg names a server and Noop otherwise.
func New(cfg config.NotifyConfig) (Notifier, error) {
	if cfg.NATSURL == "" {
		return Noop{}, nil
	}
	n, err := NewNATS(cfg.NATSURL, cfg.Subject)
	if err != nil {
		return nil, err
	}
	n.policy = retry.FromNotify(cfg)
	return n, nil
}

// NewNATS connects to url with the default retry policy. A failed connection
// is an IOError.
func NewNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("teadocs"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryIO, "connect to NATS").
			WithContext("url", url).Fatal().Build()
	}
	slog.Info("NATS notifier connected", slog.String("url", url), slog.String("subject", subject))
	return &NATS{conn: nc, subject: subject, policy: retry.DefaultPolicy()}, nil
}

// Notify publishes ev and flushes so the event is on the wire before the
// build returns.
func (n *NATS) Notify(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	err = n.policy.Do(ctx, func(ctx context.Context) error {
		if err := n.conn.Publish(n.subject, data); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		if err := n.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("flush event: %w", err)
		}
		return nil
	}, func(attempt int, err error) {
		slog.Debug("Retrying event publish", slog.Int("attempt", attempt), logfields.Error(err))
	})
	if err != nil {
		return err
	}
	slog.Debug("Published event", slog.String("type", string(ev.Type)), logfields.BuildID(ev.BuildID))
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	if err != nil {
		n.conn.Close()
	}
	return err
}
