package offlinequeue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"eeia/internal/domain"
	"eeia/internal/platform/postgres"
)

// Schema creates the offline_packets table. The payload column is JSON rather
// than JSONB so the stored text is returned byte for byte.
const Schema = `
CREATE TABLE IF NOT EXISTS offline_packets (
	id         BIGSERIAL PRIMARY KEY,
	packet_id  TEXT NOT NULL,
	device_id  TEXT NOT NULL,
	created_at TEXT NOT NULL,
	payload    JSON NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offline_packets_packet_id ON offline_packets (packet_id);
CREATE INDEX IF NOT EXISTS idx_offline_packets_device_id ON offline_packets (device_id);
`

// PostgresStore persists the queue in PostgreSQL. Ids come from the BIGSERIAL
// sequence, which is never reset.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed queue.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure offline queue schema: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) Enqueue(ctx context.Context, pkt domain.Packet) (int64, error) {
	rec, err := newRecord(pkt)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO offline_packets (packet_id, device_id, created_at, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err = s.db.QueryRowContext(ctx, query, rec.PacketID, rec.DeviceID, rec.CreatedAt, string(rec.Packet)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue packet: %w", postgres.Classify(err))
	}
	return id, nil
}

func (s *PostgresStore) DequeueBatch(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM offline_packets ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue batch: %w", postgres.Classify(err))
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan offline packet: %w", err)
		}
		pkt, err := decodePacket(payload)
		if err != nil {
			return nil, fmt.Errorf("offline packet %d: %w", id, err)
		}
		entries = append(entries, Entry{ID: id, Packet: pkt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offline packets: %w", postgres.Classify(err))
	}
	return entries, nil
}

func (s *PostgresStore) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM offline_packets WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("delete offline packets: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_packets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count offline packets: %w", postgres.Classify(err))
	}
	return n, nil
}

// Clear truncates the table. The id sequence is left alone so ids are never
// reused.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE offline_packets`); err != nil {
		return fmt.Errorf("clear offline packets: %w", postgres.Classify(err))
	}
	return nil
}
