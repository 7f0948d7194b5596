// Package kafka publishes normalized occurrences to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/config"
	"github.com/couchcryptid/eonet-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// OccurrenceMessage is the JSON value of each published message: one
// occurrence together with its event.
type OccurrenceMessage struct {
	Event      domain.Event      `json:"event"`
	Occurrence domain.Occurrence `json:"occurrence"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces occurrence messages to the configured topic. Messages
// are keyed by event ID so every occurrence of an event lands on the same
// partition in date order.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes every occurrence in the table and writes them in a
// single WriteMessages call. Occurrences whose event is missing are skipped.
// It returns the number of messages written.
func (p *Publisher) Publish(ctx context.Context, t domain.Table) (int, error) {
	events := make(map[string]domain.Event, len(t.Events))
	for _, e := range t.Events {
		events[e.ID] = e
	}

	msgs := make([]kafkago.Message, 0, len(t.Occurrences))
	for _, o := range t.Occurrences {
		e, ok := events[o.EventID]
		if !ok {
			p.logger.Warn("skipping orphan occurrence", "event_id", o.EventID)
			continue
		}
		msg, err := serializeToMessage(e, o)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("publish occurrences: %w", err)
	}
	p.logger.Info("occurrences published", "messages", len(msgs))
	return len(msgs), nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an occurrence and its event into a Kafka message.
func serializeToMessage(e domain.Event, o domain.Occurrence) (kafkago.Message, error) {
	data, err := json.Marshal(OccurrenceMessage{Event: e, Occurrence: o})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize occurrence %s: %w", o.EventID, err)
	}
	return kafkago.Message{
		Key:   []byte(e.ID),
		Value: data,
		Time:  o.Date,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(domain.JoinList(e.CategoryIDs()))},
			{Key: "status", Value: []byte(e.Status)},
			{Key: "fetched_at", Value: []byte(o.FetchedAt.Format(time.RFC3339))},
		},
	}, nil
}
