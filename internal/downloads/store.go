package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/interfaces"
)

// KeyPrefix marks download job records in the key/value store
const KeyPrefix = "download-"

// TimestampLayout is the record timestamp format (YYYY-MM-DDTHH:mm:ss)
const TimestampLayout = "2006-01-02T15:04:05"

// Record is the persisted state of one download job.
// A nil or empty DownloadURL means the job is still pending.
type Record struct {
	Key         string  `json:"-"`
	Timestamp   string  `json:"timestamp"`
	DownloadURL *string `json:"downloadUrl"`
}

// Complete reports whether the backend has produced the file
func (r Record) Complete() bool {
	return r.DownloadURL != nil && *r.DownloadURL != ""
}

// Key returns the store key for a source URL
func Key(sourceURL string) string {
	return KeyPrefix + sourceURL
}

// SourceURL strips the job prefix from a store key
func SourceURL(key string) string {
	if len(key) < len(KeyPrefix) {
		return ""
	}
	return key[len(KeyPrefix):]
}

// Store maps job keys to records in durable storage
type Store struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewStore creates a job store over key/value storage
func NewStore(kv interfaces.KeyValueStorage, logger arbor.ILogger) *Store {
	return &Store{kv: kv, logger: logger}
}

// ListKeys returns every key carrying the job prefix
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	pairs, err := s.kv.ListByPrefix(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list download records: %w", err)
	}

	keys := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		keys = append(keys, pair.Key)
	}
	return keys, nil
}

// Read returns the record stored under key. Missing, unreadable or malformed
// records all read as "no record".
func (s *Store) Read(ctx context.Context, key string) (Record, bool) {
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to read download record")
		}
		return Record{}, false
	}

	var record Record
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Ignoring malformed download record")
		return Record{}, false
	}
	if record.Timestamp == "" && record.DownloadURL == nil {
		return Record{}, false
	}

	record.Key = key
	return record, true
}

// Write persists record under key
func (s *Store) Write(ctx context.Context, key string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode download record: %w", err)
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to write download record: %w", err)
	}
	return nil
}

// Remove deletes the record under key. Removing a missing record is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove download record: %w", err)
	}
	return nil
}
