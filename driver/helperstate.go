// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package driver

import (
	"github.com/luxfi/dap-aggregator/codec"
	"github.com/luxfi/dap-aggregator/messages"
)

// reportRecord is one report's durable record inside a HelperJobState. On
// a duplicate AggregationJobInitReq, the Helper reconstructs its response
// from these records instead of re-running report-init (spec §4.5 "must
// return the same response"). For a Ready report, inputShare is kept
// (rather than the VDAF's opaque PrepState) so the next round can
// regenerate PrepState by calling PrepInit again — this VDAF's PrepInit
// is a pure function of its inputs, so re-deriving it is equivalent to
// persisting it and avoids needing a PrepState serializer in the Vdaf
// interface.
type reportRecord struct {
	reportID   messages.ReportID
	bucket     messages.DapBatchBucket
	ready      bool
	prepShare  []byte
	inputShare []byte
	failure    messages.TransitionFailure
}

// helperJobState is the Helper's persisted DapAggregationJobState for one
// aggregation job, keyed by (task_id, agg_job_id) in the storage layer.
type helperJobState struct {
	records []reportRecord
}

func (s helperJobState) encode() []byte {
	p := codec.NewPacker(256)
	p.PackVector(len(s.records), func(i int) {
		r := s.records[i]
		p.PackFixedBytes(r.reportID[:])
		p.PackByte(byte(r.bucket.Kind))
		p.PackUint64(uint64(r.bucket.BatchWindow))
		p.PackFixedBytes(r.bucket.BatchID[:])
		if r.ready {
			p.PackByte(1)
			p.PackVarBytes(r.prepShare)
			p.PackVarBytes(r.inputShare)
		} else {
			p.PackByte(0)
			p.PackByte(byte(r.failure))
		}
	})
	return p.Bytes
}

func decodeHelperJobState(b []byte) (helperJobState, error) {
	u := codec.NewUnpacker(b)
	var records []reportRecord
	u.UnpackVector(func(i int) {
		var r reportRecord
		copy(r.reportID[:], u.UnpackFixedBytes(32))
		r.bucket.Kind = messages.BatchSelectorKind(u.UnpackByte())
		r.bucket.BatchWindow = messages.Time(u.UnpackUint64())
		copy(r.bucket.BatchID[:], u.UnpackFixedBytes(32))
		ready := u.UnpackByte()
		if ready == 1 {
			r.ready = true
			r.prepShare = u.UnpackVarBytes()
			r.inputShare = u.UnpackVarBytes()
		} else {
			r.failure = messages.TransitionFailure(u.UnpackByte())
		}
		records = append(records, r)
	})
	if u.Err != nil {
		return helperJobState{}, u.Err
	}
	return helperJobState{records: records}, nil
}
