// Package events publishes workspace changes on NATS so other processes can
// follow captures and answers as they happen.
//
// Every event is JSON on the subject copyvara.events.<type>. Publishing is
// best effort: a failed publish is logged by the caller and never fails the
// operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix is the root of every event subject.
const SubjectPrefix = "copyvara.events"

// Type names a workspace change.
type Type string

const (
	DocumentAdded    Type = "document.added"
	DocumentFailed   Type = "document.failed"
	QuestionAnswered Type = "question.answered"
	WorkspaceReset   Type = "workspace.reset"
)

// Event describes one workspace change.
type Event struct {
	Type        Type      `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	DocumentID  string    `json:"document_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Question    string    `json:"question,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Subject returns the NATS subject for t.
func Subject(t Type) string {
	return SubjectPrefix + "." + string(t)
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes events on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher wraps conn. The caller owns the connection.
func NewNATSPublisher(conn *nats.Conn) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	if err := p.conn.Publish(Subject(e.Type), data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	return nil
}

// Connect dials url with reconnect settings suited to a long-running
// daemon. Connection state changes are logged.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("copyvara"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	return conn, nil
}

// Subscribe calls handler for every event published under SubjectPrefix.
// Messages that do not decode are skipped.
func Subscribe(conn *nats.Conn, handler func(Event)) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(SubjectPrefix+".>", func(msg *nats.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return
		}
		handler(e)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", SubjectPrefix, err)
	}
	return sub, nil
}
