package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4/stdlib"
	"github.com/tidwall/gjson"

	"offer-filter/internal"
	"offer-filter/internal/settings"
)

// settingsChannel is the LISTEN/NOTIFY channel carrying changed settings as a JSON object.
const settingsChannel = "offer_filter_settings"

// SettingsStore implements settings.Store on the settings table.
type SettingsStore struct {
	*Storage
}

func (s *Storage) Settings() *SettingsStore {
	return &SettingsStore{Storage: s}
}

func (s *SettingsStore) Get(ctx context.Context, keys ...string) (settings.Values, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if len(keys) == 0 {
		rows, err = s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key = ANY($1)`, keys)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := settings.Values{}
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		out[key] = gjson.ParseBytes(raw).Value()
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings.NormalizeAll(out), nil
}

func (s *SettingsStore) Set(ctx context.Context, values settings.Values) error {
	next := settings.NormalizeAll(values)
	if len(next) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		WHERE settings.value IS DISTINCT FROM EXCLUDED.value
		RETURNING key`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	changed := settings.Values{}
	for k, v := range next {
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		var key string
		err = stmt.QueryRowContext(ctx, k, string(encoded)).Scan(&key)
		if errors.Is(err, sql.ErrNoRows) {
			// Unchanged.
			continue
		}
		if err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
		changed[key] = v
	}

	if len(changed) > 0 {
		payload, err := json.Marshal(changed)
		if err != nil {
			return err
		}
		// Delivered to listeners when the transaction commits.
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, settingsChannel, string(payload)); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}
	return tx.Commit()
}

// Subscribe holds one pooled connection in LISTEN mode until ctx is done.
func (s *SettingsStore) Subscribe(ctx context.Context) (<-chan settings.Values, error) {
	conn, err := stdlib.AcquireConn(s.db)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+settingsChannel); err != nil {
		_ = stdlib.ReleaseConn(s.db, conn)
		return nil, fmt.Errorf("listen: %w", err)
	}

	ch := make(chan settings.Values, 16)
	go func() {
		defer func() {
			_ = stdlib.ReleaseConn(s.db, conn)
		}()
		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					internal.Log.WithError(err).Error("settings listener stopped")
				}
				return
			}
			changed := decodePayload(n.Payload)
			if len(changed) == 0 {
				continue
			}
			select {
			case ch <- changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func decodePayload(payload string) settings.Values {
	out := settings.Values{}
	gjson.Parse(payload).ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.Value()
		return true
	})
	return settings.NormalizeAll(out)
}
