package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib" // Import the driver
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
  key        TEXT PRIMARY KEY,
  value      JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS filter_passes (
  id          BIGSERIAL PRIMARY KEY,
  session_id  TEXT NOT NULL,
  url         TEXT NOT NULL,
  page        INTEGER NOT NULL,
  filtered    INTEGER NOT NULL,
  hidden      INTEGER NOT NULL,
  total       INTEGER NOT NULL,
  recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_filter_passes_session ON filter_passes(session_id, recorded_at);
`

type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// EnsureSchema creates the tables used by the settings store and the pass sink.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
