// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package aggstore implements spec §4.6's aggregate-share store API on top
// of a storage.Store: merging report shares into per-bucket accumulators,
// summing a batch span into a collector-facing aggregate, and enforcing
// the batch-overlap invariant (a bucket frozen by a prior collection can
// never be merged into, or folded into a later collection, again).
package aggstore

import (
	"context"
	"errors"

	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/storage"
	"github.com/luxfi/dap-aggregator/utils/set"
	"github.com/luxfi/dap-aggregator/vdaf"
)

// ErrBatchOverlap is returned by GetAggShare when the requested span
// touches a bucket that a prior collection already froze.
var ErrBatchOverlap = errors.New("aggstore: batch overlaps a collected bucket")

// ErrDuplicateBucket is returned when a span names the same bucket more
// than once: summing it twice would double-count that bucket's reports
// into the returned aggregate.
var ErrDuplicateBucket = errors.New("aggstore: span names the same bucket more than once")

// TryPutAggShareSpan merges span into the store, one atomic operation per
// bucket. The returned map has one entry per bucket in span.
func TryPutAggShareSpan(ctx context.Context, store storage.Store, taskID messages.TaskID, span []storage.BucketDelta) (map[messages.DapBatchBucket]storage.BucketResult, error) {
	return store.AggStoreAtomicMerge(ctx, taskID, span)
}

// GetAggShare sums the shares of every bucket in buckets into one
// DapAggregateShare, failing ErrBatchOverlap if any bucket was already
// collected by a prior, disjoint collection.
func GetAggShare(ctx context.Context, store storage.Store, taskID messages.TaskID, buckets []messages.DapBatchBucket) (vdaf.Share, error) {
	var total vdaf.Share
	for _, b := range buckets {
		entry, ok, err := store.AggStoreGet(ctx, taskID, b)
		if err != nil {
			return nil, err
		}
		if !ok || entry.Share == nil {
			continue
		}
		if entry.Collected {
			return nil, ErrBatchOverlap
		}
		if total == nil {
			total = entry.Share
			continue
		}
		total, err = total.Merge(entry.Share)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

// AggShareSpan is the collector-facing summary of a batch span: the
// combined measurement plus the report_count/checksum an
// AggregateShareReq's caller can cross-check against its own view of the
// batch (spec §7 BatchMismatch).
type AggShareSpan struct {
	Share       vdaf.Share
	ReportCount uint64
	Checksum    [32]byte
}

// GetAggShareWithMeta is GetAggShare plus the report_count/checksum needed
// to detect a batch-definition mismatch between Leader and Helper.
func GetAggShareWithMeta(ctx context.Context, store storage.Store, taskID messages.TaskID, buckets []messages.DapBatchBucket) (AggShareSpan, error) {
	seen := set.NewSet[messages.DapBatchBucket](len(buckets))
	var span AggShareSpan
	for _, b := range buckets {
		if seen.Contains(b) {
			return AggShareSpan{}, ErrDuplicateBucket
		}
		seen.Add(b)
		entry, ok, err := store.AggStoreGet(ctx, taskID, b)
		if err != nil {
			return AggShareSpan{}, err
		}
		if !ok || entry.Share == nil {
			continue
		}
		if entry.Collected {
			return AggShareSpan{}, ErrBatchOverlap
		}
		if span.Share == nil {
			span.Share = entry.Share
		} else {
			span.Share, err = span.Share.Merge(entry.Share)
			if err != nil {
				return AggShareSpan{}, err
			}
		}
		span.ReportCount += entry.ReportCount
		span.Checksum = messages.MergeChecksum(span.Checksum, entry.Checksum)
	}
	return span, nil
}

// MarkCollected freezes every bucket in buckets: future merges or reads
// into them via GetAggShare fail.
func MarkCollected(ctx context.Context, store storage.Store, taskID messages.TaskID, buckets []messages.DapBatchBucket) error {
	return store.AggStoreMarkCollected(ctx, taskID, buckets)
}

// IsBatchOverlapping reports whether any bucket in buckets has already
// been collected (spec §4.6 is_batch_overlapping), used to validate a
// CollectReq/AggregateShareReq before work is scheduled against it.
func IsBatchOverlapping(ctx context.Context, store storage.Store, taskID messages.TaskID, buckets []messages.DapBatchBucket) (bool, error) {
	for _, b := range buckets {
		entry, ok, err := store.AggStoreGet(ctx, taskID, b)
		if err != nil {
			return false, err
		}
		if ok && entry.Collected {
			return true, nil
		}
	}
	return false, nil
}
