// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pebblestore is a durable storage.Store backed by
// github.com/cockroachdb/pebble, giving the abstract interface spec §6
// describes a real persistent backend. Keys are namespaced by prefix so
// the four logical key spaces (generic KV, processed-report set, Helper
// state, aggregate-share entries) share one LSM tree without colliding.
package pebblestore

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/storage"
)

const (
	prefixKV      = "kv/"
	prefixProc    = "proc/"
	prefixHelper  = "hstate/"
	prefixAggStore = "agg/"
)

// Store is a durable storage.Store. All read-modify-write sequences run
// under mu and commit through a pebble.Batch so a crash mid-sequence
// cannot leave a bucket half-merged.
type Store struct {
	db     *pebble.DB
	mu     sync.Mutex
	decode storage.ShareDecoder
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if absent) a pebble database at path. decode
// reconstructs the task's vdaf.Share type from its encoded bytes.
func Open(path string, decode storage.ShareDecoder) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "pebblestore: open")
	}
	return &Store{db: db, decode: decode}, nil
}

// Close releases the underlying pebble database.
func (s *Store) Close() error {
	return s.db.Close()
}

func kvKey(key []byte) []byte {
	return append([]byte(prefixKV), key...)
}

func procKey(taskID messages.TaskID, id messages.ReportID) []byte {
	k := make([]byte, 0, len(prefixProc)+64)
	k = append(k, prefixProc...)
	k = append(k, taskID[:]...)
	k = append(k, id[:]...)
	return k
}

func helperKey(taskID messages.TaskID, aggJobID messages.AggregationJobID) []byte {
	k := make([]byte, 0, len(prefixHelper)+64)
	k = append(k, prefixHelper...)
	k = append(k, taskID[:]...)
	k = append(k, aggJobID[:]...)
	return k
}

func aggKey(taskID messages.TaskID, bucket messages.DapBatchBucket) []byte {
	k := make([]byte, 0, len(prefixAggStore)+32+16)
	k = append(k, prefixAggStore...)
	k = append(k, taskID[:]...)
	k = append(k, bucket.String()...)
	return k
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

func (s *Store) PutIfNotExists(_ context.Context, key, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := kvKey(key)
	if _, ok, err := s.get(k); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := s.db.Set(k, value, pebble.Sync); err != nil {
		return false, errors.Wrap(err, "pebblestore: put")
	}
	return true, nil
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(kvKey(key))
}

func (s *Store) CheckAndSetProcessed(_ context.Context, taskID messages.TaskID, reportIDs []messages.ReportID) (map[messages.ReportID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	already := make(map[messages.ReportID]bool)
	batch := s.db.NewBatch()
	for _, id := range reportIDs {
		k := procKey(taskID, id)
		if _, ok, err := s.get(k); err != nil {
			return nil, err
		} else if ok {
			already[id] = true
			continue
		}
		if err := batch.Set(k, []byte{1}, nil); err != nil {
			return nil, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, errors.Wrap(err, "pebblestore: commit processed set")
	}
	return already, nil
}

func (s *Store) PeekProcessed(_ context.Context, taskID messages.TaskID, reportIDs []messages.ReportID) (map[messages.ReportID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	already := make(map[messages.ReportID]bool)
	for _, id := range reportIDs {
		if _, ok, err := s.get(procKey(taskID, id)); err != nil {
			return nil, err
		} else if ok {
			already[id] = true
		}
	}
	return already, nil
}

func (s *Store) PutHelperStateIfNotExists(_ context.Context, taskID messages.TaskID, aggJobID messages.AggregationJobID, state []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := helperKey(taskID, aggJobID)
	if _, ok, err := s.get(k); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := s.db.Set(k, state, pebble.Sync); err != nil {
		return false, errors.Wrap(err, "pebblestore: put helper state")
	}
	return true, nil
}

func (s *Store) GetHelperState(_ context.Context, taskID messages.TaskID, aggJobID messages.AggregationJobID) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(helperKey(taskID, aggJobID))
}

// entryMetaLen is the fixed-width prefix encodeEntry writes ahead of the
// share bytes: [collected byte][report_count uint64 big-endian][checksum].
const entryMetaLen = 1 + 8 + 32

// encodeEntry lays out an AggShareEntry as
// [collected byte][report_count][checksum][share bytes].
func encodeEntry(e storage.AggShareEntry) []byte {
	var shareBytes []byte
	if e.Share != nil {
		shareBytes = e.Share.Encode()
	}
	out := make([]byte, entryMetaLen+len(shareBytes))
	if e.Collected {
		out[0] = 1
	}
	binary.BigEndian.PutUint64(out[1:9], e.ReportCount)
	copy(out[9:entryMetaLen], e.Checksum[:])
	copy(out[entryMetaLen:], shareBytes)
	return out
}

func (s *Store) decodeEntry(b []byte) (storage.AggShareEntry, error) {
	if len(b) == 0 {
		return storage.AggShareEntry{}, nil
	}
	entry := storage.AggShareEntry{
		Collected:   b[0] == 1,
		ReportCount: binary.BigEndian.Uint64(b[1:9]),
	}
	copy(entry.Checksum[:], b[9:entryMetaLen])
	if len(b) > entryMetaLen {
		share, err := s.decode(b[entryMetaLen:])
		if err != nil {
			return storage.AggShareEntry{}, err
		}
		entry.Share = share
	}
	return entry, nil
}

func (s *Store) AggStoreAtomicMerge(_ context.Context, taskID messages.TaskID, span []storage.BucketDelta) (map[messages.DapBatchBucket]storage.BucketResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make(map[messages.DapBatchBucket]storage.BucketResult, len(span))
	for _, bd := range span {
		var replays []messages.ReportID
		for _, id := range bd.ReportIDs {
			if _, ok, err := s.get(procKey(taskID, id)); err != nil {
				return nil, err
			} else if ok {
				replays = append(replays, id)
			}
		}
		if len(replays) > 0 {
			results[bd.Bucket] = storage.BucketResult{Outcome: storage.MergeReplaysDetected, ReplayIDs: replays}
			continue
		}

		raw, ok, err := s.get(aggKey(taskID, bd.Bucket))
		if err != nil {
			return nil, err
		}
		var entry storage.AggShareEntry
		if ok {
			entry, err = s.decodeEntry(raw)
			if err != nil {
				return nil, err
			}
		}
		if entry.Collected {
			results[bd.Bucket] = storage.BucketResult{Outcome: storage.MergeAlreadyCollected}
			continue
		}

		merged := bd.Delta
		if entry.Share != nil && !entry.Share.IsEmpty() {
			merged, err = entry.Share.Merge(bd.Delta)
			if err != nil {
				return nil, err
			}
		}
		checksum := messages.MergeChecksum(entry.Checksum, messages.ReportIDChecksum(bd.ReportIDs))

		batch := s.db.NewBatch()
		newEntry := storage.AggShareEntry{
			Share:       merged,
			ReportCount: entry.ReportCount + uint64(len(bd.ReportIDs)),
			Checksum:    checksum,
		}
		if err := batch.Set(aggKey(taskID, bd.Bucket), encodeEntry(newEntry), nil); err != nil {
			return nil, err
		}
		for _, id := range bd.ReportIDs {
			if err := batch.Set(procKey(taskID, id), []byte{1}, nil); err != nil {
				return nil, err
			}
		}
		if err := batch.Commit(pebble.Sync); err != nil {
			return nil, errors.Wrap(err, "pebblestore: commit bucket merge")
		}
		results[bd.Bucket] = storage.BucketResult{Outcome: storage.MergeOK}
	}
	return results, nil
}

func (s *Store) AggStoreGet(_ context.Context, taskID messages.TaskID, bucket messages.DapBatchBucket) (storage.AggShareEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok, err := s.get(aggKey(taskID, bucket))
	if err != nil || !ok {
		return storage.AggShareEntry{}, false, err
	}
	entry, err := s.decodeEntry(raw)
	return entry, true, err
}

func (s *Store) AggStoreMarkCollected(_ context.Context, taskID messages.TaskID, buckets []messages.DapBatchBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for _, b := range buckets {
		k := aggKey(taskID, b)
		raw, ok, err := s.get(k)
		if err != nil {
			return err
		}
		var entry storage.AggShareEntry
		if ok {
			entry, err = s.decodeEntry(raw)
			if err != nil {
				return err
			}
		}
		entry.Collected = true
		if err := batch.Set(k, encodeEntry(entry), nil); err != nil {
			return err
		}
	}
	return errors.Wrap(batch.Commit(pebble.Sync), "pebblestore: commit mark collected")
}
