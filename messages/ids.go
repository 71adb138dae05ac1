// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messages

import "github.com/luxfi/dap-aggregator/internal/bhex"

// Every protocol identifier is a 32-byte opaque value, displayed as
// base64url. Distinct Go types stop a TaskID from being passed where a
// ReportID is expected even though both are plain [32]byte underneath.

// TaskID identifies a task configuration.
type TaskID [32]byte

// ReportID is unique per client report.
type ReportID [32]byte

// AggregationJobID is unique per Leader-initiated aggregation job.
type AggregationJobID [32]byte

// CollectionJobID is unique per collection request.
type CollectionJobID [32]byte

// BatchID is unique per fixed-size batch.
type BatchID [32]byte

func (id TaskID) String() string           { return bhex.Encode(id[:]) }
func (id ReportID) String() string         { return bhex.Encode(id[:]) }
func (id AggregationJobID) String() string { return bhex.Encode(id[:]) }
func (id CollectionJobID) String() string  { return bhex.Encode(id[:]) }
func (id BatchID) String() string          { return bhex.Encode(id[:]) }

func (id TaskID) IsZero() bool           { return id == TaskID{} }
func (id AggregationJobID) IsZero() bool { return id == AggregationJobID{} }
func (id CollectionJobID) IsZero() bool  { return id == CollectionJobID{} }
func (id BatchID) IsZero() bool          { return id == BatchID{} }

// Time is the number of seconds since the Unix epoch. All arithmetic on it
// is integer; no floating point appears anywhere in the protocol.
type Time uint64

// Quantize rounds down t to the nearest multiple of precision, producing
// the TimeInterval batch_window a report's metadata.Time falls into.
func (t Time) Quantize(precision Time) Time {
	if precision == 0 {
		return t
	}
	return t - t%precision
}

// ReportIDChecksum XORs every id together, the order-independent digest an
// AggregateShareReq carries so the Helper can detect a batch-definition
// mismatch with the Leader (spec §7 BatchMismatch) without storing the
// full report-id list.
func ReportIDChecksum(ids []ReportID) [32]byte {
	var out [32]byte
	for _, id := range ids {
		for i := range out {
			out[i] ^= id[i]
		}
	}
	return out
}

// MergeChecksum XORs b into a, combining two buckets' independently-folded
// checksums the same way ReportIDChecksum folds individual ids.
func MergeChecksum(a, b [32]byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
