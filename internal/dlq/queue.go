// Package dlq keeps batches that could not be committed so they can be
// replayed later with `kgraph retry`.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/kgraph/internal/metrics"
)

const bucketName = "spooled_batches"

// Entry represents a spooled batch
type Entry struct {
	ID           string          `json:"id"`
	Source       string          `json:"source"`
	Batch        json.RawMessage `json:"batch"`
	ErrorMessage string          `json:"error_message"`
	RetryCount   int             `json:"retry_count"`
	LastRetryAt  *time.Time      `json:"last_retry_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Stats summarizes the spool contents
type Stats struct {
	Total         int
	MaxRetryCount int
	Oldest        *time.Time
}

// Queue is a bbolt-backed spool of failed batches keyed by source path
type Queue struct {
	db     *bolt.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the spool file at path
func Open(path string) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open spool %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize spool: %w", err)
	}

	q := &Queue{
		db:     db,
		logger: slog.Default().With("component", "dlq"),
		now:    time.Now,
	}
	q.refreshDepth()
	return q, nil
}

// Close releases the spool file lock
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue spools a failed batch.
// If the source is already spooled, its batch and error are replaced and
// retry_count is incremented.
func (q *Queue) Enqueue(ctx context.Context, source string, batch []byte, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(batch) {
		return fmt.Errorf("batch from %s is not valid JSON", source)
	}

	errorMsg := ""
	if cause != nil {
		errorMsg = cause.Error()
	}

	var retries int
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		now := q.now().UTC()

		entry := Entry{ID: source, Source: source, CreatedAt: now}
		if existing := b.Get([]byte(source)); existing != nil {
			if err := json.Unmarshal(existing, &entry); err != nil {
				return fmt.Errorf("corrupt spool entry %s: %w", source, err)
			}
			entry.RetryCount++
			entry.LastRetryAt = &now
		}
		entry.Batch = append(json.RawMessage(nil), batch...)
		entry.ErrorMessage = errorMsg
		entry.UpdatedAt = now
		retries = entry.RetryCount

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal spool entry: %w", err)
		}
		return b.Put([]byte(source), data)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue to spool: %w", err)
	}

	q.logger.Warn("batch spooled",
		"source", source,
		"error", errorMsg,
		"retry_count", retries,
	)
	q.refreshDepth()
	return nil
}

// List returns all spooled entries, oldest first
func (q *Queue) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []Entry
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupt spool entry %s: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list spool: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Source < entries[j].Source
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// MarkResolved removes a batch once it has committed. Removing an unknown
// source is a no-op.
func (q *Queue) MarkResolved(ctx context.Context, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(source))
	})
	if err != nil {
		return fmt.Errorf("failed to mark resolved: %w", err)
	}

	q.logger.Info("spooled batch resolved", "source", source)
	q.refreshDepth()
	return nil
}

// Len returns the number of spooled batches
func (q *Queue) Len() int {
	n := 0
	_ = q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})
	return n
}

// GetStats returns spool statistics
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(entries)}
	for i, e := range entries {
		if e.RetryCount > stats.MaxRetryCount {
			stats.MaxRetryCount = e.RetryCount
		}
		if i == 0 {
			created := e.CreatedAt
			stats.Oldest = &created
		}
	}
	return stats, nil
}

func (q *Queue) refreshDepth() {
	metrics.SpoolDepth.Set(float64(q.Len()))
}
