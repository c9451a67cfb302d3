// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

// Package dlqstore persists dead-letter records in an embedded Badger
// database. It implements the engine's DLQSink so dead-lettered events
// survive restarts; the engine itself holds records in memory only.
package dlqstore

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/eventcore/internal/engine"
	"github.com/tomtom215/eventcore/internal/logging"
)

// keyPrefix namespaces dead-letter records in the database.
const keyPrefix = "dlq:"

// gcInterval is how often value-log garbage collection runs.
const gcInterval = 10 * time.Minute

// Store is a Badger-backed dead-letter sink.
type Store struct {
	db        *badger.DB
	retention time.Duration
}

// Open creates or opens the Badger database at the given path. Records
// expire after the retention period via Badger TTLs.
func Open(path string, retention time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithCompression(0)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open dlq store: %w", err)
	}

	return &Store{db: db, retention: retention}, nil
}

// Store implements engine.DLQSink. The record is keyed by event ID and
// first-seen time so repeated dead-letters of one logical event are
// preserved separately.
func (s *Store) Store(_ context.Context, record *engine.DeadLetterRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal dead-letter record: %w", err)
	}

	key := fmt.Sprintf("%s%s:%d", keyPrefix, record.Event.EventID, record.FirstSeenAt.UnixNano())
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data).WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("store dead-letter record: %w", err)
	}
	return nil
}

// List returns up to limit stored records in key order (event ID, then
// first-seen time); the result is not ordered by age across events.
func (s *Store) List(limit int) ([]*engine.DeadLetterRecord, error) {
	records := make([]*engine.DeadLetterRecord, 0, limit)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record engine.DeadLetterRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, &record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list dead-letter records: %w", err)
	}
	return records, nil
}

// RunGC runs periodic value-log garbage collection until the context is
// canceled. Implements suture.Service.
func (s *Store) RunGC(ctx context.Context) error {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				logging.Warn().Err(err).Msg("dlq store value log GC failed")
			}
		}
	}
}

// Serve implements suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	return s.RunGC(ctx)
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
