package storage

import (
	"context"
	"time"

	"offer-filter/internal"
	"offer-filter/pkg/models"
)

// Sink persists a batch of items.
type Sink[T any] interface {
	Save(batch []T) error
}

// PassSink implements Sink for filtering pass reports.
type PassSink struct {
	*Storage
}

func (s *Storage) Passes() *PassSink {
	return &PassSink{Storage: s}
}

func (s *PassSink) Save(batch []models.PassReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO filter_passes (session_id, url, page, filtered, hidden, total, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range batch {
		_, err := stmt.Exec(p.SessionID, p.URL, p.Page, p.Stats.Filtered, p.Stats.Hidden, p.Stats.Total, p.At)
		if err != nil {
			internal.Log.WithError(err).WithField("url", p.URL).Warn("Error saving pass report")
		}
	}
	return tx.Commit()
}

// LogSink writes pass reports to the log when no database is configured.
type LogSink struct{}

func (LogSink) Save(batch []models.PassReport) error {
	for _, p := range batch {
		internal.Log.WithFields(map[string]interface{}{
			"session":  p.SessionID,
			"page":     p.Page,
			"filtered": p.Stats.Filtered,
			"hidden":   p.Stats.Hidden,
			"total":    p.Stats.Total,
		}).Debug("pass report")
	}
	return nil
}

// RunBatchWorker drains in into sink, flushing when batchSize items are buffered
// or batchTimeout elapses. It flushes what is left and returns when ctx is done
// or in is closed.
func RunBatchWorker[T any](ctx context.Context, in <-chan T, sink Sink[T], batchSize int, batchTimeout time.Duration) {
	buffer := make([]T, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		if err := sink.Save(buffer); err != nil {
			internal.Log.WithError(err).Error("Batch save failed")
		} else {
			internal.Log.Debugf("Saved batch of %d items", len(buffer))
		}
		buffer = buffer[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case item, ok := <-in:
			if !ok {
				flush()
				return
			}
			buffer = append(buffer, item)
			if len(buffer) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
