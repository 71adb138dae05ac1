// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messages

import (
	"strconv"

	"github.com/luxfi/dap-aggregator/codec"
)

// Interval is a time-interval batch bound: [start, start+duration).
type Interval struct {
	Start    Time
	Duration Time
}

// End returns the exclusive upper bound of the interval.
func (iv Interval) End() Time {
	return iv.Start + iv.Duration
}

// IsValidFor reports whether iv is well-formed for a task whose quantum is
// timePrecision (spec §3, §8 "Interval validity").
func (iv Interval) IsValidFor(timePrecision Time) bool {
	if timePrecision == 0 {
		return false
	}
	return iv.Start%timePrecision == 0 &&
		iv.Duration%timePrecision == 0 &&
		iv.Duration >= timePrecision
}

func (iv Interval) Encode(p *codec.Packer) {
	p.PackUint64(uint64(iv.Start))
	p.PackUint64(uint64(iv.Duration))
}

func decodeInterval(u *codec.Unpacker) Interval {
	start := u.UnpackUint64()
	duration := u.UnpackUint64()
	return Interval{Start: Time(start), Duration: Time(duration)}
}

// BatchSelectorKind discriminates the BatchSelector/PartialBatchSelector
// tagged union.
type BatchSelectorKind uint8

const (
	BatchTimeInterval BatchSelectorKind = iota
	BatchFixedSize
)

// BatchSelector names the batch a collect or aggregate-share request
// targets: either a time-interval bound or a fixed-size batch id.
type BatchSelector struct {
	Kind     BatchSelectorKind
	Interval Interval // set iff Kind == BatchTimeInterval
	BatchID  BatchID  // set iff Kind == BatchFixedSize
}

// PartialBatchSelector is the selector carried inside an
// AggregationJobInitReq: for time-interval tasks it carries no bounds (the
// bucket is derived per-report from each report's timestamp); for
// fixed-size tasks it names the batch.
type PartialBatchSelector struct {
	Kind    BatchSelectorKind
	BatchID BatchID // set iff Kind == BatchFixedSize
}

// DapBatchBucket is the unit of aggregation a report or span of reports
// belongs to.
type DapBatchBucket struct {
	Kind        BatchSelectorKind
	BatchWindow Time    // set iff Kind == BatchTimeInterval
	BatchID     BatchID // set iff Kind == BatchFixedSize
}

func (b DapBatchBucket) String() string {
	if b.Kind == BatchFixedSize {
		return "fixed:" + b.BatchID.String()
	}
	return "time:" + strconv.FormatUint(uint64(b.BatchWindow), 10)
}
