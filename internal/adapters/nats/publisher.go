package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
)

var (
	_ ports.EventPublisher  = (*Publisher)(nil)
	_ ports.IngestAnnouncer = (*Publisher)(nil)
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	now  func() time.Time
}

func connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := connect(url, "locus-publisher")
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

	return &Publisher{conn: conn, js: js, now: time.Now}, nil
}

// ensureStreams creates or updates the engine's streams.
func ensureStreams(js nats.JetStreamContext) error {
	streams := []nats.StreamConfig{
		{
			Name:      "LOCUS_VISITS",
			Subjects:  []string{SubjectVisitsPrefix + ">"},
			Retention: nats.InterestPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "LOCUS_POINTS",
			Subjects:  []string{SubjectPointsDeleted, SubjectPointsIngested},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "LOCUS_SHARING",
			Subjects:  []string{SubjectSharingChanged},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishVisitEvent(ctx context.Context, op string, visitIDs []int64) error {
	return p.publish(ctx, VisitSubject(op), VisitEventMessage{
		Op:         op,
		VisitIDs:   visitIDs,
		OccurredAt: p.now().UTC(),
	})
}

func (p *Publisher) PublishPointsDeleted(ctx context.Context, ids []int64, count int) error {
	return p.publish(ctx, SubjectPointsDeleted, PointsDeletedMessage{
		PointIDs:   ids,
		Count:      count,
		OccurredAt: p.now().UTC(),
	})
}

func (p *Publisher) PublishSharingChanged(ctx context.Context, state domain.SharingState) error {
	return p.publish(ctx, SubjectSharingChanged, SharingChangedMessage{
		State:      state,
		OccurredAt: p.now().UTC(),
	})
}

// PublishIngested announces newly stored points. The backend may publish these itself;
// the watcher publishes them for backends that do not.
func (p *Publisher) PublishIngested(ctx context.Context, msg IngestedMessage) error {
	return p.publish(ctx, SubjectPointsIngested, msg)
}

// AnnounceIngested implements ports.IngestAnnouncer.
func (p *Publisher) AnnounceIngested(ctx context.Context, from, to time.Time, count int) error {
	return p.PublishIngested(ctx, IngestedMessage{From: from.UTC(), To: to.UTC(), Count: count})
}

// Connected reports whether the connection is up, for readiness checks.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
