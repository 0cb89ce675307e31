// Package store persists per-frame pipeline results in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dudu/blazelive/internal/snapshot"
)

// Store manages a PostgreSQL connection pool and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Frame is one stored row.
type Frame struct {
	ID         int64
	Source     string
	Frame      int
	Domain     string
	Detections int
	Record     snapshot.Record
	CreatedAt  time.Time
}

// New opens a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS frame_results (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			frame INT NOT NULL,
			domain TEXT NOT NULL,
			detections INT NOT NULL,
			record BYTEA NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (source, domain, frame)
		);
		CREATE INDEX IF NOT EXISTS frame_results_source_idx ON frame_results (source);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close waits for in-flight queries and closes every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// Reset removes earlier results for a source so a re-run does not mix frames.
func (s *Store) Reset(ctx context.Context, source, domain string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM frame_results WHERE source = $1 AND domain = $2", source, domain)
	return err
}

// SaveFrame stores the msgpack-encoded record for one frame, replacing any
// earlier row for the same source, domain and frame.
func (s *Store) SaveFrame(ctx context.Context, source string, rec snapshot.Record) error {
	data, err := rec.Marshal()
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO frame_results (source, frame, domain, detections, record)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source, domain, frame) DO UPDATE
		SET detections = EXCLUDED.detections, record = EXCLUDED.record, created_at = NOW()
	`, source, rec.Frame, rec.Domain, len(rec.Detections), data)
	if err != nil {
		return fmt.Errorf("failed to save frame %d: %w", rec.Frame, err)
	}
	return nil
}

// Frames returns every stored frame of a source in frame order.
func (s *Store) Frames(ctx context.Context, source string) ([]Frame, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, frame, domain, detections, record, created_at
		FROM frame_results WHERE source = $1 ORDER BY frame ASC, domain ASC
	`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		var data []byte
		if err := rows.Scan(&f.ID, &f.Source, &f.Frame, &f.Domain, &f.Detections, &data, &f.CreatedAt); err != nil {
			return nil, err
		}
		if f.Record, err = snapshot.Unmarshal(data); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f.Frame, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// DetectionCounts returns the number of frames per detection count for a source.
func (s *Store) DetectionCounts(ctx context.Context, source string) (map[int]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT detections, COUNT(*) FROM frame_results WHERE source = $1 GROUP BY detections
	`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var detections, n int
		if err := rows.Scan(&detections, &n); err != nil {
			return nil, err
		}
		counts[detections] = n
	}
	return counts, rows.Err()
}
