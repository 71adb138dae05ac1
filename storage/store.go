// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage defines the abstract persistence interface spec §6
// requires: a generic KV primitive plus the task-scoped primitives the
// driver and aggstore need (processed-report tracking, Helper state,
// aggregate-share merge/collect). It is implementable by an in-memory
// backend (storage/memstore) or a durable one (storage/pebblestore); the
// rest of the engine depends only on the Store interface.
package storage

import (
	"context"
	"errors"

	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/vdaf"
)

// ErrNotFound names a missing value. Get, GetHelperState and AggStoreGet
// do not return it: they report a missing value with ok=false and a nil
// error.
var ErrNotFound = errors.New("storage: not found")

// MergeOutcome is the per-bucket result of AggStoreAtomicMerge (spec §4.6
// try_put_agg_share_span).
type MergeOutcome uint8

const (
	MergeOK MergeOutcome = iota
	MergeAlreadyCollected
	MergeReplaysDetected
)

// BucketDelta is one bucket's contribution to an atomic merge span: the
// share to fold in and the report ids it was derived from, so the replay
// check and the merge happen in the same atomic step.
type BucketDelta struct {
	Bucket    messages.DapBatchBucket
	Delta     vdaf.Share
	ReportIDs []messages.ReportID
}

// BucketResult reports what happened to one bucket in a merge span.
type BucketResult struct {
	Outcome   MergeOutcome
	ReplayIDs []messages.ReportID // populated iff Outcome == MergeReplaysDetected
}

// AggShareEntry is the per-(task,bucket) record: spec §4.6's "agg_share
// and collected flag". Once Collected is true it is frozen: every future
// AggStoreAtomicMerge touching it must fail with MergeAlreadyCollected.
type AggShareEntry struct {
	Share       vdaf.Share
	Collected   bool
	ReportCount uint64
	Checksum    [32]byte
}

// Store is the abstract persistence surface spec §6 names. All methods
// are safe for concurrent use; implementations must serialize per-bucket
// merges so the atomicity invariant in spec §4.6 holds.
type Store interface {
	// PutIfNotExists stores value at key iff key is currently unset,
	// reporting whether the store's value is the newly-written one.
	PutIfNotExists(ctx context.Context, key, value []byte) (bool, error)
	// Get returns the value at key, or ok=false if unset.
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)

	// CheckAndSetProcessed atomically marks reportIDs as processed for
	// taskID and returns the subset that were already processed before
	// this call (spec §6 report_processed_check_and_set).
	// AggStoreAtomicMerge does not call it: it checks and marks its span's
	// report ids itself, in the same atomic step as the merge, so a report
	// is marked processed only when its job actually commits.
	CheckAndSetProcessed(ctx context.Context, taskID messages.TaskID, reportIDs []messages.ReportID) (alreadyProcessed map[messages.ReportID]bool, err error)

	// PeekProcessed is the non-mutating counterpart used by report-init's
	// early replay classification (spec §4.3 reason 4): it reports which
	// of reportIDs are already processed without marking any of them.
	PeekProcessed(ctx context.Context, taskID messages.TaskID, reportIDs []messages.ReportID) (alreadyProcessed map[messages.ReportID]bool, err error)

	// PutHelperStateIfNotExists persists a Helper's DapAggregationJobState
	// keyed by (taskID, aggJobID), refusing to overwrite an existing one
	// so duplicate AggregationJobInitReq calls stay idempotent (spec §4.5).
	PutHelperStateIfNotExists(ctx context.Context, taskID messages.TaskID, aggJobID messages.AggregationJobID, state []byte) (created bool, err error)
	// GetHelperState returns the persisted state, or ok=false if none.
	GetHelperState(ctx context.Context, taskID messages.TaskID, aggJobID messages.AggregationJobID) (state []byte, ok bool, err error)

	// AggStoreAtomicMerge applies span to the aggregate-share store: for
	// each bucket, replay-detect against the processed-report set, check
	// the collected flag, and merge the delta — all in one atomic step
	// per bucket (spec §4.6 try_put_agg_share_span).
	AggStoreAtomicMerge(ctx context.Context, taskID messages.TaskID, span []BucketDelta) (map[messages.DapBatchBucket]BucketResult, error)
	// AggStoreGet returns the current entry for one bucket, or
	// ok=false if the bucket has never been merged into.
	AggStoreGet(ctx context.Context, taskID messages.TaskID, bucket messages.DapBatchBucket) (entry AggShareEntry, ok bool, err error)
	// AggStoreMarkCollected freezes every bucket listed (spec §6
	// agg_store_mark_collected); subsequent merges into any of them fail.
	AggStoreMarkCollected(ctx context.Context, taskID messages.TaskID, buckets []messages.DapBatchBucket) error
}

// ShareDecoder reconstructs a vdaf.Share from its Encode()d bytes. Store
// implementations that serialize shares to a byte-oriented backend (e.g.
// pebblestore) need one to merge deltas into a decoded accumulator; the
// caller supplies the decoder for whichever VDAF the task uses.
type ShareDecoder func([]byte) (vdaf.Share, error)
