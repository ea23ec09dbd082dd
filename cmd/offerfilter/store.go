package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"offer-filter/internal"
	"offer-filter/internal/config"
	"offer-filter/internal/settings"
	"offer-filter/internal/storage"
)

// backend is the settings store picked from the configuration, plus the
// database behind it when there is one.
type backend struct {
	store settings.Store
	db    *storage.Storage
	close func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.DatabaseURL != "" {
		db, err := waitForDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st := storage.NewStorage(db)
		if err := st.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &backend{store: st.Settings(), db: st, close: func() { db.Close() }}, nil
	}

	path, err := cfg.SettingsPath()
	if err != nil {
		return nil, err
	}
	fs, err := settings.OpenFileStore(path)
	if err != nil {
		return nil, err
	}
	internal.Log.WithField("path", path).Debug("Using settings file")
	return &backend{store: fs, close: func() { fs.Close() }}, nil
}

func waitForDB(ctx context.Context, url string) (*sql.DB, error) {
	var err error
	for i := 0; i < 10; i++ {
		var db *sql.DB
		db, err = sql.Open("pgx", url)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				internal.Log.Info("Connected to database")
				return db, nil
			}
			db.Close()
		}
		internal.Log.WithError(err).Warn("Waiting for database...")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("could not connect to database after retries: %w", err)
}
