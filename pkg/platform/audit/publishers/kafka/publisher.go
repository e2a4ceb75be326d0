// Package kafka forwards audit events to a Kafka topic as JSON records keyed
// by subject, so all events for one process land on the same partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "certflow/pkg/platform/audit"
)

// Publisher implements audit.Sink on a franz-go producer client.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New connects a producer to the given seed brokers.
func New(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	p := &Publisher{client: client, topic: topic, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// EnsureTopic creates the audit topic when it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka: create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

type record struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Timestamp     string `json:"timestamp"`
	Action        string `json:"action"`
	Subject       string `json:"subject,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	ActorID       string `json:"actor_id,omitempty"`
	ProcessID     string `json:"process_id,omitempty"`
	CertificateID string `json:"certificate_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	SweepID       string `json:"sweep_id,omitempty"`
	Severity      string `json:"severity,omitempty"`
}

// Encode renders an event as the JSON record value.
func Encode(event audit.Event) ([]byte, error) {
	r := record{
		ID:            event.ID,
		Category:      string(event.Category),
		Timestamp:     event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:        event.Action,
		Subject:       event.Subject,
		ActorID:       event.ActorID,
		ProcessID:     event.ProcessID,
		CertificateID: event.CertificateID,
		Reason:        event.Reason,
		RequestID:     event.RequestID,
		SweepID:       event.SweepID,
		Severity:      string(event.Severity),
	}
	if r.Category == "" {
		r.Category = string(audit.AuditEvent(event.Action).Category())
	}
	if !event.UserID.IsNil() {
		r.UserID = event.UserID.String()
	}
	return json.Marshal(r)
}

// Append produces the event synchronously and waits for broker acks.
func (p *Publisher) Append(ctx context.Context, event audit.Event) error {
	value, err := Encode(event)
	if err != nil {
		return fmt.Errorf("kafka: encode event: %w", err)
	}
	rec := &kgo.Record{Topic: p.topic, Key: []byte(event.Subject), Value: value}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		p.logger.ErrorContext(ctx, "kafka audit produce failed", "action", event.Action, "error", err)
		return fmt.Errorf("kafka: produce: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close(ctx context.Context) {
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka audit flush failed", "error", err)
	}
	p.client.Close()
}
