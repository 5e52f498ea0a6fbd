package offlinequeue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"eeia/internal/domain"
)

const (
	DefaultStreamName = "EEIA_OFFLINE"
	DefaultSubject    = "eeia.offline.packets"
)

// JetStreamStore uses a JetStream stream as the queue. The stream sequence is
// the entry id; purging keeps the last sequence, so ids are not reused.
type JetStreamStore struct {
	js      jetstream.JetStream
	stream  jetstream.Stream
	subject string
}

// JetStreamOption configures a JetStreamStore.
type JetStreamOption func(*jetStreamConfig)

type jetStreamConfig struct {
	stream   string
	subject  string
	replicas int
	maxAge   time.Duration
}

// WithStream overrides the stream and subject names.
func WithStream(name, subject string) JetStreamOption {
	return func(c *jetStreamConfig) {
		if name != "" {
			c.stream = name
		}
		if subject != "" {
			c.subject = subject
		}
	}
}

// WithReplicas sets the stream replica count.
func WithReplicas(n int) JetStreamOption {
	return func(c *jetStreamConfig) {
		if n > 0 {
			c.replicas = n
		}
	}
}

// WithMaxAge bounds how long an undelivered packet is retained. Zero keeps
// packets until deleted.
func WithMaxAge(d time.Duration) JetStreamOption {
	return func(c *jetStreamConfig) {
		c.maxAge = d
	}
}

// NewJetStreamStore creates (or updates) the backing stream and returns the
// store.
func NewJetStreamStore(ctx context.Context, js jetstream.JetStream, opts ...JetStreamOption) (*JetStreamStore, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream context is required")
	}
	cfg := jetStreamConfig{stream: DefaultStreamName, subject: DefaultSubject, replicas: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.stream,
		Description: "EEIA packets awaiting redelivery",
		Subjects:    []string{cfg.subject},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		Replicas:    cfg.replicas,
		MaxAge:      cfg.maxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("create offline stream %s: %w", cfg.stream, err)
	}
	return &JetStreamStore{js: js, stream: stream, subject: cfg.subject}, nil
}

func (s *JetStreamStore) Enqueue(ctx context.Context, pkt domain.Packet) (int64, error) {
	raw, err := encodeRecord(pkt)
	if err != nil {
		return 0, err
	}
	ack, err := s.js.Publish(ctx, s.subject, raw)
	if err != nil {
		return 0, fmt.Errorf("enqueue packet: %w", err)
	}
	return int64(ack.Sequence), nil
}

func (s *JetStreamStore) DequeueBatch(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}
	info, err := s.stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("offline stream info: %w", err)
	}
	entries := make([]Entry, 0, min(limit, int(info.State.Msgs)))
	if info.State.Msgs == 0 {
		return entries, nil
	}

	seq := info.State.FirstSeq
	for len(entries) < limit && seq <= info.State.LastSeq {
		// With a subject filter GetMsg returns the first message at or after seq.
		msg, err := s.stream.GetMsg(ctx, seq, jetstream.WithGetMsgSubject(s.subject))
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read offline message %d: %w", seq, err)
		}
		pkt, err := decodeRecord(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("offline packet %d: %w", msg.Sequence, err)
		}
		entries = append(entries, Entry{ID: int64(msg.Sequence), Packet: pkt})
		seq = msg.Sequence + 1
	}
	return entries, nil
}

func (s *JetStreamStore) DeleteMany(ctx context.Context, ids []int64) error {
	for id := range idSet(ids) {
		if id <= 0 {
			continue
		}
		err := s.stream.DeleteMsg(ctx, uint64(id))
		if err != nil && !errors.Is(err, jetstream.ErrMsgNotFound) {
			return fmt.Errorf("delete offline message %d: %w", id, err)
		}
	}
	return nil
}

func (s *JetStreamStore) Count(ctx context.Context) (int, error) {
	info, err := s.stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("offline stream info: %w", err)
	}
	return int(info.State.Msgs), nil
}

func (s *JetStreamStore) Clear(ctx context.Context) error {
	if err := s.stream.Purge(ctx); err != nil {
		return fmt.Errorf("purge offline stream: %w", err)
	}
	return nil
}
