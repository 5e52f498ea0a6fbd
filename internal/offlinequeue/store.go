// Package offlinequeue buffers packets that could not be forwarded.
//
// The queue is FIFO by a sequence id assigned atomically at enqueue. Reads are
// non-destructive peeks; entries leave only through DeleteMany, which lets a
// redelivery pass delete exactly what it delivered (at-least-once). Consumers
// may see an entry twice and should deduplicate on packet_id.
package offlinequeue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"eeia/internal/domain"
)

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

// Entry is one queued packet with its sequence id.
type Entry struct {
	ID     int64
	Packet domain.Packet
}

// Store is a queue backend. Implementations must assign ids atomically and
// monotonically, and must never reuse an id, even after Clear.
type Store interface {
	// Enqueue persists pkt and returns its sequence id.
	Enqueue(ctx context.Context, pkt domain.Packet) (int64, error)
	// DequeueBatch returns up to limit entries in ascending id order without
	// removing them.
	DequeueBatch(ctx context.Context, limit int) ([]Entry, error)
	// DeleteMany removes the given ids. Unknown ids are ignored.
	DeleteMany(ctx context.Context, ids []int64) error
	// Count returns the queue depth.
	Count(ctx context.Context) (int, error)
	// Clear empties the queue.
	Clear(ctx context.Context) error
}

// record is the persisted form: denormalised lookup columns plus the lossless
// packet encoding.
type record struct {
	PacketID  string          `json:"packet_id"`
	DeviceID  string          `json:"device_id"`
	CreatedAt string          `json:"created_at"`
	Packet    json.RawMessage `json:"packet"`
}

func newRecord(pkt domain.Packet) (record, error) {
	payload, err := json.Marshal(pkt)
	if err != nil {
		return record{}, fmt.Errorf("encode packet: %w", err)
	}
	return record{
		PacketID:  pkt.ID(),
		DeviceID:  pkt.DeviceID(),
		CreatedAt: pkt.CreatedAt().UTC().Format(time.RFC3339Nano),
		Packet:    payload,
	}, nil
}

func encodeRecord(pkt domain.Packet) ([]byte, error) {
	rec, err := newRecord(pkt)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return raw, nil
}

func decodeRecord(raw []byte) (domain.Packet, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var rec record
	if err := dec.Decode(&rec); err != nil {
		return domain.Packet{}, fmt.Errorf("decode record: %w", err)
	}
	return decodePacket(rec.Packet)
}

func decodePacket(raw []byte) (domain.Packet, error) {
	var pkt domain.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		return domain.Packet{}, fmt.Errorf("decode packet: %w", err)
	}
	return pkt, nil
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
