// Package kafka ships audit events to Kafka-compatible brokers.
//
// Each category has its own topic. Records are keyed by event id and carry
// the JSON-encoded event, matching what downstream audit consumers expect.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "eeia/pkg/platform/audit"
)

const (
	DefaultSecurityTopic   = "eeia.audit.security"
	DefaultOperationsTopic = "eeia.audit.operations"
)

// Config selects brokers and topics.
type Config struct {
	Brokers           []string
	ClientID          string
	SecurityTopic     string
	OperationsTopic   string
	Partitions        int32
	ReplicationFactor int16
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "eeia-edge"
	}
	if c.SecurityTopic == "" {
		c.SecurityTopic = DefaultSecurityTopic
	}
	if c.OperationsTopic == "" {
		c.OperationsTopic = DefaultOperationsTopic
	}
	if c.Partitions <= 0 {
		c.Partitions = 1
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
}

// Sink produces audit batches with franz-go.
type Sink struct {
	client *kgo.Client
	cfg    Config
	logger *slog.Logger
}

// NewSink connects a producer. Call EnsureTopics before the first write when
// the brokers do not auto-create topics.
func NewSink(cfg Config, logger *slog.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, cfg: cfg, logger: logger}, nil
}

// EnsureTopics creates the audit topics if they are missing.
func (s *Sink) EnsureTopics(ctx context.Context) error {
	admin := kadm.NewClient(s.client)
	resp, err := admin.CreateTopics(ctx, s.cfg.Partitions, s.cfg.ReplicationFactor, nil,
		s.cfg.SecurityTopic, s.cfg.OperationsTopic)
	if err != nil {
		return fmt.Errorf("create audit topics: %w", err)
	}
	for topic, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, r.Err)
		}
	}
	s.logger.Info("audit topics ready",
		"security_topic", s.cfg.SecurityTopic,
		"operations_topic", s.cfg.OperationsTopic,
	)
	return nil
}

// Ping checks broker connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// TopicFor maps a category to its topic.
func (s *Sink) TopicFor(category audit.EventCategory) string {
	if category == audit.CategorySecurity {
		return s.cfg.SecurityTopic
	}
	return s.cfg.OperationsTopic
}

// WriteBatch produces events synchronously and returns the first failure.
func (s *Sink) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode audit event %s: %w", e.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic:     s.TopicFor(e.Category),
			Key:       []byte(e.ID.String()),
			Value:     value,
			Timestamp: e.Timestamp,
			Headers: []kgo.RecordHeader{
				{Key: "action", Value: []byte(e.Action)},
				{Key: "severity", Value: []byte(e.Severity)},
			},
		})
	}
	if err := s.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit events: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (s *Sink) Close() {
	s.client.Close()
}
