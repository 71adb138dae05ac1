// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds task configuration: the per-task parameters that
// govern report validity, batch shape, and version negotiation. The
// Validate()/Default() shape is grounded on the teacher's
// config/parameters.go (DefaultParams + per-field error sentinels).
package config

import (
	"errors"

	"github.com/luxfi/dap-aggregator/messages"
)

// QueryType selects how a task's reports are grouped into batches.
type QueryType uint8

const (
	QueryTimeInterval QueryType = iota
	QueryFixedSize
)

var (
	ErrInvalidTimePrecision = errors.New("config: time_precision must be > 0")
	ErrInvalidMinBatchSize  = errors.New("config: min_batch_size must be >= 1")
	ErrInvalidExpiration    = errors.New("config: task_expiration must be after task_start")
	ErrInvalidVersion       = errors.New("config: unrecognized DapVersion")
)

// TaskConfig is a task's static configuration, referenced throughout
// §3-§4: time_precision governs Interval/bucket validity, min_batch_size
// governs fixed-size batch saturation, and the validity window bounds
// accepted report timestamps.
type TaskConfig struct {
	TaskID          messages.TaskID
	Version         messages.DapVersion
	QueryType       QueryType
	TimePrecision   messages.Time
	MinBatchSize    uint64
	TaskStart       messages.Time
	TaskExpiration  messages.Time
	ReportStorageEpoch messages.Time // how far in the past a report time may be
	MaxFutureSkew      messages.Time // how far in the future a report time may be
	VdafVerifyKey      []byte
	// CollectorHpkeConfig is the collector's published HPKE receiver
	// config; both aggregators encrypt their half of a Collection to it
	// (spec §6 CollectResp).
	CollectorHpkeConfig messages.HpkeConfig
}

// Default returns a TaskConfig with the teacher's style of sane defaults,
// suitable for tests and local development.
func Default(taskID messages.TaskID) TaskConfig {
	return TaskConfig{
		TaskID:             taskID,
		Version:            messages.DraftLatest,
		QueryType:          QueryTimeInterval,
		TimePrecision:      3600,
		MinBatchSize:       10,
		TaskStart:          0,
		TaskExpiration:     1 << 40,
		ReportStorageEpoch: 7 * 24 * 3600,
		MaxFutureSkew:      300,
	}
}

// Validate checks the structural invariants spec.md requires of a task.
func (c TaskConfig) Validate() error {
	if c.TimePrecision == 0 {
		return ErrInvalidTimePrecision
	}
	if c.MinBatchSize == 0 {
		return ErrInvalidMinBatchSize
	}
	if c.TaskExpiration <= c.TaskStart {
		return ErrInvalidExpiration
	}
	if !c.Version.Valid() {
		return ErrInvalidVersion
	}
	return nil
}

// ReportTimeValid reports whether reportTime lies in the report's accepted
// validity window relative to now (spec §3 ReportMetadata validity):
// [now - report_storage_epoch, now + max_future_skew] intersected with
// [task_start, task_expiration].
func (c TaskConfig) ReportTimeValid(reportTime, now messages.Time) bool {
	if now > c.ReportStorageEpoch && reportTime < now-c.ReportStorageEpoch {
		return false
	}
	if reportTime > now+c.MaxFutureSkew {
		return false
	}
	if reportTime < c.TaskStart || reportTime > c.TaskExpiration {
		return false
	}
	return true
}

// IntervalValid reports whether iv is well-formed for this task (spec §3
// Interval validity, delegated to messages.Interval.IsValidFor).
func (c TaskConfig) IntervalValid(iv messages.Interval) bool {
	return iv.IsValidFor(c.TimePrecision)
}

// BatchWindow quantizes reportTime to this task's time-interval bucket.
func (c TaskConfig) BatchWindow(reportTime messages.Time) messages.Time {
	return reportTime.Quantize(c.TimePrecision)
}

// BucketsForSelector enumerates every DapBatchBucket a BatchSelector spans:
// one bucket for fixed-size, or one bucket per time_precision-wide window
// for time-interval. This is the single source of truth for bucket
// enumeration; workengine, transport, and driver all call it rather than
// keeping their own copies of the windowing loop.
func (c TaskConfig) BucketsForSelector(sel messages.BatchSelector) []messages.DapBatchBucket {
	if sel.Kind == messages.BatchFixedSize {
		return []messages.DapBatchBucket{{Kind: messages.BatchFixedSize, BatchID: sel.BatchID}}
	}
	var buckets []messages.DapBatchBucket
	for w := sel.Interval.Start; w < sel.Interval.End(); w += c.TimePrecision {
		buckets = append(buckets, messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: w})
	}
	return buckets
}
