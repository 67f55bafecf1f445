package natsadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
)

var _ ports.IngestSubscriber = (*Subscriber)(nil)

// Subscriber implements ports.IngestSubscriber using NATS JetStream.
type Subscriber struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	durable string
	subs    []*nats.Subscription
}

// NewSubscriber connects to NATS. durable names the consumer so restarts resume
// where the previous instance stopped.
func NewSubscriber(url, durable string) (*Subscriber, error) {
	conn, err := connect(url, "locus-subscriber")
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStreams(js); err != nil {
		conn.Close()
		return nil, err
	}
	if durable == "" {
		durable = "locus-ingest"
	}
	return &Subscriber{conn: conn, js: js, durable: durable}, nil
}

func (s *Subscriber) SubscribePointsIngested(ctx context.Context, handler func(ctx context.Context, from, to time.Time) error) error {
	sub, err := s.js.Subscribe(SubjectPointsIngested, func(msg *nats.Msg) {
		m, err := ParseIngested(msg.Data)
		if err != nil {
			// Malformed messages never become valid; drop them.
			slog.Warn("dropping ingest message", "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, m.From, m.To); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				_ = msg.Term()
				return
			}
			slog.Warn("ingest handler failed", "error", err, "from", m.From, "to", m.To)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(s.durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
