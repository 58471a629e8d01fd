package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/sellerdesk/peony/config"
	"github.com/sellerdesk/peony/pkg/metrics"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/tracing"
)

// Producer publishes match events for downstream consumers (pricing,
// analytics, catalog sync).
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a producer for the configured output topic.
func NewProducer(cfg *config.Config, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.KafkaCompression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.KafkaBatchSize,
		BatchTimeout:           time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks:           kafka.RequiredAcks(cfg.KafkaRequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.KafkaOutputTopic,
	}
}

// Close closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// MatchEvent is the wire format of one resolution outcome.
type MatchEvent struct {
	EventType   string    `json:"event_type"`
	Source      string    `json:"source"`
	ExternalSKU string    `json:"external_sku"`
	MasterID    string    `json:"master_id,omitempty"`
	Decision    string    `json:"decision"`
	MatchMethod string    `json:"match_method,omitempty"`
	Score       float64   `json:"score"`
	NewMaster   bool      `json:"new_master"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewMatchEvent builds the event for one resolution.
func NewMatchEvent(record models.SourceRecord, resolution *models.Resolution) *MatchEvent {
	event := &MatchEvent{
		EventType:   "product." + resolution.Decision,
		Source:      record.Source,
		ExternalSKU: record.ExternalSKU,
		Decision:    resolution.Decision,
		MatchMethod: resolution.MatchMethod,
		Score:       resolution.Score,
		NewMaster:   resolution.CreatedMaster,
	}
	if resolution.Master != nil {
		event.MasterID = resolution.Master.ID
	}
	return event
}

// PublishMatchEvent publishes one match event, keyed by (source, sku) so a
// pair's events stay ordered within a partition.
func (p *Producer) PublishMatchEvent(ctx context.Context, event *MatchEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMatchEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.Source + ":" + event.ExternalSKU),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish match event")
		metrics.KafkaMessagesTotal.WithLabelValues(p.topic, "failed").Inc()
		return err
	}

	metrics.KafkaMessagesTotal.WithLabelValues(p.topic, "published").Inc()

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":   event.EventType,
		"source":       event.Source,
		"external_sku": event.ExternalSKU,
	}).Debug("Published match event")

	return nil
}

// PublishMatchEvents publishes a batch of match events.
func (p *Producer) PublishMatchEvents(ctx context.Context, events []*MatchEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMatchEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.Source + ":" + event.ExternalSKU),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "source", Value: []byte(event.Source)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish match events batch")
		metrics.KafkaMessagesTotal.WithLabelValues(p.topic, "failed").Inc()
		return err
	}

	metrics.KafkaMessagesTotal.WithLabelValues(p.topic, "published").Inc()

	return nil
}
