// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package memstore is the spec-mandated in-memory storage.Store backend:
// volatile, guarded by sharded mutexes keyed by task id so unrelated
// tasks never contend, grounded on the teacher's metrics/metric.go
// registry-of-mutex-guarded-maps shape.
package memstore

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/storage"
)

const shardCount = 16

type shard struct {
	mu          sync.Mutex
	kv          map[string][]byte
	processed   map[string]struct{}
	helperState map[string][]byte
	aggShares   map[string]storage.AggShareEntry
}

func newShard() *shard {
	return &shard{
		kv:          make(map[string][]byte),
		processed:   make(map[string]struct{}),
		helperState: make(map[string][]byte),
		aggShares:   make(map[string]storage.AggShareEntry),
	}
}

// Store is an in-memory storage.Store. The zero value is not usable; use
// New.
type Store struct {
	shards [shardCount]*shard
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s
}

func (s *Store) shardFor(taskID messages.TaskID) *shard {
	h := fnv.New32a()
	h.Write(taskID[:])
	return s.shards[h.Sum32()%shardCount]
}

// shardForKey shards generic KV keys on their own bytes, since callers of
// PutIfNotExists/Get are not necessarily task-scoped.
func (s *Store) shardForKey(key []byte) *shard {
	h := fnv.New32a()
	h.Write(key)
	return s.shards[h.Sum32()%shardCount]
}

func (s *Store) PutIfNotExists(_ context.Context, key, value []byte) (bool, error) {
	sh := s.shardForKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	k := string(key)
	if _, exists := sh.kv[k]; exists {
		return false, nil
	}
	sh.kv[k] = append([]byte(nil), value...)
	return true, nil
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	sh := s.shardForKey(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.kv[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) CheckAndSetProcessed(_ context.Context, taskID messages.TaskID, reportIDs []messages.ReportID) (map[messages.ReportID]bool, error) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	already := make(map[messages.ReportID]bool)
	for _, id := range reportIDs {
		k := string(taskID[:]) + string(id[:])
		if _, seen := sh.processed[k]; seen {
			already[id] = true
			continue
		}
		sh.processed[k] = struct{}{}
	}
	return already, nil
}

func (s *Store) PeekProcessed(_ context.Context, taskID messages.TaskID, reportIDs []messages.ReportID) (map[messages.ReportID]bool, error) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	already := make(map[messages.ReportID]bool)
	for _, id := range reportIDs {
		k := string(taskID[:]) + string(id[:])
		if _, seen := sh.processed[k]; seen {
			already[id] = true
		}
	}
	return already, nil
}

func (s *Store) PutHelperStateIfNotExists(_ context.Context, taskID messages.TaskID, aggJobID messages.AggregationJobID, state []byte) (bool, error) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	k := string(taskID[:]) + string(aggJobID[:])
	if _, exists := sh.helperState[k]; exists {
		return false, nil
	}
	sh.helperState[k] = append([]byte(nil), state...)
	return true, nil
}

func (s *Store) GetHelperState(_ context.Context, taskID messages.TaskID, aggJobID messages.AggregationJobID) ([]byte, bool, error) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	k := string(taskID[:]) + string(aggJobID[:])
	v, ok := sh.helperState[k]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) AggStoreAtomicMerge(_ context.Context, taskID messages.TaskID, span []storage.BucketDelta) (map[messages.DapBatchBucket]storage.BucketResult, error) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	results := make(map[messages.DapBatchBucket]storage.BucketResult, len(span))
	for _, bd := range span {
		bucketKey := string(taskID[:]) + bd.Bucket.String()

		var replays []messages.ReportID
		for _, id := range bd.ReportIDs {
			rk := string(taskID[:]) + string(id[:])
			if _, seen := sh.processed[rk]; seen {
				replays = append(replays, id)
			}
		}
		if len(replays) > 0 {
			results[bd.Bucket] = storage.BucketResult{Outcome: storage.MergeReplaysDetected, ReplayIDs: replays}
			continue
		}

		entry, exists := sh.aggShares[bucketKey]
		if exists && entry.Collected {
			results[bd.Bucket] = storage.BucketResult{Outcome: storage.MergeAlreadyCollected}
			continue
		}

		merged := bd.Delta
		if exists && !entry.Share.IsEmpty() {
			var err error
			merged, err = entry.Share.Merge(bd.Delta)
			if err != nil {
				return nil, err
			}
		}
		checksum := messages.MergeChecksum(entry.Checksum, messages.ReportIDChecksum(bd.ReportIDs))
		sh.aggShares[bucketKey] = storage.AggShareEntry{
			Share:       merged,
			Collected:   false,
			ReportCount: entry.ReportCount + uint64(len(bd.ReportIDs)),
			Checksum:    checksum,
		}
		for _, id := range bd.ReportIDs {
			sh.processed[string(taskID[:])+string(id[:])] = struct{}{}
		}
		results[bd.Bucket] = storage.BucketResult{Outcome: storage.MergeOK}
	}
	return results, nil
}

func (s *Store) AggStoreGet(_ context.Context, taskID messages.TaskID, bucket messages.DapBatchBucket) (storage.AggShareEntry, bool, error) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	entry, ok := sh.aggShares[string(taskID[:])+bucket.String()]
	return entry, ok, nil
}

func (s *Store) AggStoreMarkCollected(_ context.Context, taskID messages.TaskID, buckets []messages.DapBatchBucket) error {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, b := range buckets {
		k := string(taskID[:]) + b.String()
		entry := sh.aggShares[k]
		entry.Collected = true
		sh.aggShares[k] = entry
	}
	return nil
}
