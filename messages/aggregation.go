// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messages

import "github.com/luxfi/dap-aggregator/codec"

// aggregationReqTag discriminates the Init/Continue variants of an
// aggregation-job request the way daphne's AggregateReqVar does (spec §4.1:
// "u8 tag=0" for init, "u8 tag=1" for continue).
const (
	tagAggJobInit     = 0
	tagAggJobContinue = 1
)

// AggregationJobInitReq is the Leader's request starting an aggregation
// job: one ReportShare per report, in the order they must stay in for the
// rest of the job (spec §3 "AggregationJobState" ordering invariant).
type AggregationJobInitReq struct {
	TaskID       TaskID
	AggJobID     AggregationJobID
	AggParam     []byte
	PartBatchSel PartialBatchSelector
	ReportShares []ReportShare
}

func (r AggregationJobInitReq) Encode() []byte {
	p := codec.NewPacker(256)
	packID(p, r.TaskID)
	packID(p, r.AggJobID)
	p.PackByte(tagAggJobInit)
	p.PackVarBytes(r.AggParam)
	p.PackByte(byte(r.PartBatchSel.Kind))
	if r.PartBatchSel.Kind == BatchFixedSize {
		packID(p, r.PartBatchSel.BatchID)
	}
	p.PackVector(len(r.ReportShares), func(i int) {
		r.ReportShares[i].Encode(p)
	})
	return p.Bytes
}

// DecodeAggregationJobInitReq decodes an AggregationJobInitReq. The tag
// byte is validated in place; a mismatched tag (or an AggregationJobContinueReq's
// bytes fed here by mistake) yields ErrUnexpectedValue.
func DecodeAggregationJobInitReq(b []byte) (AggregationJobInitReq, error) {
	u := codec.NewUnpacker(b)
	taskID := unpackID[TaskID](u)
	aggJobID := unpackID[AggregationJobID](u)
	tag := u.UnpackByte()
	if u.Err == nil && tag != tagAggJobInit {
		u.Err = codec.ErrUnexpectedValue
	}
	aggParam := u.UnpackVarBytes()
	pbsKind := BatchSelectorKind(u.UnpackByte())
	pbs := PartialBatchSelector{Kind: pbsKind}
	if pbsKind == BatchFixedSize {
		pbs.BatchID = unpackID[BatchID](u)
	}
	var shares []ReportShare
	u.UnpackVector(func(i int) {
		shares = append(shares, decodeReportShare(u))
	})
	if u.Err != nil {
		return AggregationJobInitReq{}, u.Err
	}
	if !u.Done() {
		return AggregationJobInitReq{}, codec.ErrUnexpectedValue
	}
	return AggregationJobInitReq{
		TaskID:       taskID,
		AggJobID:     aggJobID,
		AggParam:     aggParam,
		PartBatchSel: pbs,
		ReportShares: shares,
	}, nil
}

// AggregationJobContinueReq carries the Leader's next-round Transitions,
// one per still-live report, in the same order as the initial request.
type AggregationJobContinueReq struct {
	TaskID      TaskID
	AggJobID    AggregationJobID
	Transitions []Transition
}

func (r AggregationJobContinueReq) Encode() []byte {
	p := codec.NewPacker(256)
	packID(p, r.TaskID)
	packID(p, r.AggJobID)
	p.PackByte(tagAggJobContinue)
	p.PackVector(len(r.Transitions), func(i int) {
		r.Transitions[i].Encode(p)
	})
	return p.Bytes
}

func DecodeAggregationJobContinueReq(b []byte) (AggregationJobContinueReq, error) {
	u := codec.NewUnpacker(b)
	taskID := unpackID[TaskID](u)
	aggJobID := unpackID[AggregationJobID](u)
	tag := u.UnpackByte()
	if u.Err == nil && tag != tagAggJobContinue {
		u.Err = codec.ErrUnexpectedValue
	}
	var transitions []Transition
	u.UnpackVector(func(i int) {
		transitions = append(transitions, decodeTransition(u))
	})
	if u.Err != nil {
		return AggregationJobContinueReq{}, u.Err
	}
	if !u.Done() {
		return AggregationJobContinueReq{}, codec.ErrUnexpectedValue
	}
	return AggregationJobContinueReq{
		TaskID:      taskID,
		AggJobID:    aggJobID,
		Transitions: transitions,
	}, nil
}

// AggregationJobResp is the Helper's (or, after combining, the Leader's
// view of the) per-report Transitions for one round.
type AggregationJobResp struct {
	Transitions []Transition
}

func (r AggregationJobResp) Encode() []byte {
	p := codec.NewPacker(256)
	p.PackVector(len(r.Transitions), func(i int) {
		r.Transitions[i].Encode(p)
	})
	return p.Bytes
}

func DecodeAggregationJobResp(b []byte) (AggregationJobResp, error) {
	u := codec.NewUnpacker(b)
	var transitions []Transition
	u.UnpackVector(func(i int) {
		transitions = append(transitions, decodeTransition(u))
	})
	if u.Err != nil {
		return AggregationJobResp{}, u.Err
	}
	if !u.Done() {
		return AggregationJobResp{}, codec.ErrUnexpectedValue
	}
	return AggregationJobResp{Transitions: transitions}, nil
}
