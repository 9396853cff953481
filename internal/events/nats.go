package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docledger/docledger/internal/resilience"
	"github.com/docledger/docledger/pkg/logger"
	"github.com/nats-io/nats.go"
)

const (
	DefaultSubjectPrefix = "docledger.events"
	DefaultSweepSubject  = "docledger.purge.sweep"
	DefaultQueueGroup    = "docledger-workers"
)

// Options configures the NATS connection.
type Options struct {
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// Connect dials NATS with reconnect handling that logs through pkg/logger.
func Connect(url string, o Options) (*nats.Conn, error) {
	if o.Name == "" {
		o.Name = "docledger"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	nc, err := nats.Connect(url,
		nats.Name(o.Name),
		nats.Timeout(o.ConnectTimeout),
		nats.ReconnectWait(o.ReconnectWait),
		nats.MaxReconnects(o.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes JSON events to "<prefix>.<type>" and sweep
// requests to a dedicated subject consumed by cmd/worker.
type NATSPublisher struct {
	conn         conn
	prefix       string
	sweepSubject string
	exec         *resilience.Executor
}

func NewNATSPublisher(c conn, prefix, sweepSubject string, exec *resilience.Executor) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if sweepSubject == "" {
		sweepSubject = DefaultSweepSubject
	}
	return &NATSPublisher{conn: c, prefix: prefix, sweepSubject: sweepSubject, exec: exec}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	return p.publish(ctx, p.Subject(e.Type), e)
}

func (p *NATSPublisher) RequestSweep(ctx context.Context, r SweepRequest) error {
	return p.publish(ctx, p.sweepSubject, r)
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	return p.exec.Execute(ctx, "nats.publish", func(context.Context) error {
		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}, classifyNATSError)
}

func classifyNATSError(err error) resilience.Classification {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.Classification{}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrConnectionReconnecting):
		return resilience.Classification{Retryable: true, RecordFailure: true}
	}
	return resilience.Classification{RecordFailure: true}
}

// SubscribeSweeps runs handler for every sweep request delivered to the
// queue group until ctx is cancelled, then drains the subscription.
func SubscribeSweeps(ctx context.Context, nc *nats.Conn, subject, queue string, handler func(context.Context, SweepRequest) error) error {
	if subject == "" {
		subject = DefaultSweepSubject
	}
	if queue == "" {
		queue = DefaultQueueGroup
	}
	sub, err := nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		var req SweepRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.Warnf("discarding malformed sweep request: %v", err)
			return
		}
		if err := handler(ctx, req); err != nil {
			logger.Errorf("sweep request doc=%s reason=%s failed: %v", req.DocumentID, req.Reason, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}
