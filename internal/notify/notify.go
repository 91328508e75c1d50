// Package notify emits run outcome events so downstream automation can react
// to publishes without polling the hosting ref.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
)

// RunEvent is the wire form of one completed run.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Trigger   string    `json:"trigger"`
	Outcome   string    `json:"outcome"` // success|failed|canceled
	Ref       string    `json:"ref,omitempty"`
	Revision  string    `json:"revision,omitempty"`
	NoChange  bool      `json:"no_change"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier publishes run events.
type Notifier interface {
	NotifyRun(ctx context.Context, event RunEvent) error
	Close() error
}

// NATSNotifier publishes run events to a NATS subject.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

// NewNATSNotifier connects to NATS. Returns a Noop notifier when no URL is
// configured, so callers never branch on whether notifications are enabled.
func NewNATSNotifier(cfg config.NotifyConfig) (Notifier, error) {
	if cfg.NATSURL == "" {
		return NoopNotifier{}, nil
	}

	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	slog.Info("Run notifications enabled",
		logfields.URL(cfg.NATSURL),
		slog.String("subject", cfg.Subject))

	return &NATSNotifier{conn: conn, subject: cfg.Subject}, nil
}

// NotifyRun publishes one run event. Failures are reported, not fatal; a run
// that published successfully stays successful even if the event is lost.
func (n *NATSNotifier) NotifyRun(ctx context.Context, event RunEvent) error {
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}

	slog.Debug("Published run event",
		logfields.RunID(event.RunID),
		slog.String("outcome", event.Outcome))
	return nil
}

// Close drains and closes the connection.
func (n *NATSNotifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}

// NoopNotifier discards events.
type NoopNotifier struct{}

func (NoopNotifier) NotifyRun(context.Context, RunEvent) error { return nil }
func (NoopNotifier) Close() error                              { return nil }
