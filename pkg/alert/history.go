package alert

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/fingerprint"
)

// History is a Postgres-backed alert archive. The channel itself is
// fire-and-forget; durability is a subscriber concern, and this is
// that subscriber's store.
type History struct {
	db *sql.DB
}

const historySchema = `
CREATE TABLE IF NOT EXISTS alerts (
	id          TEXT PRIMARY KEY,
	stream_id   TEXT NOT NULL DEFAULT '',
	score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	fingerprint TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// OpenHistory connects to Postgres and ensures the schema exists.
func OpenHistory(dbURL string) (*History, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("alert history: open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("alert history: schema: %w", err)
	}
	return &History{db: db}, nil
}

// Close releases the connection pool.
func (h *History) Close() error { return h.db.Close() }

// Save inserts one alert row. Duplicate ids are ignored.
func (h *History) Save(ctx context.Context, a Alert) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO alerts (id, stream_id, score, fingerprint, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.StreamID, a.Score, fingerprint.Format(a.Fingerprint), a.At)
	return err
}

// Recent returns up to limit alerts, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, stream_id, score, fingerprint, created_at
		 FROM alerts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Alert
	for rows.Next() {
		var a Alert
		var fp string
		if err := rows.Scan(&a.ID, &a.StreamID, &a.Score, &fp, &a.At); err != nil {
			return nil, err
		}
		if vec, err := fingerprint.Parse(fp); err == nil {
			a.Fingerprint = vec
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
