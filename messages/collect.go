// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messages

import "github.com/luxfi/dap-aggregator/codec"

// CollectReq asks the Leader to aggregate a batch interval and return an
// encrypted Collection once ready.
type CollectReq struct {
	TaskID   TaskID
	Interval Interval
	AggParam []byte
}

func (r CollectReq) Encode() []byte {
	p := codec.NewPacker(64)
	packID(p, r.TaskID)
	r.Interval.Encode(p)
	p.PackVarBytes(r.AggParam)
	return p.Bytes
}

func DecodeCollectReq(b []byte) (CollectReq, error) {
	u := codec.NewUnpacker(b)
	taskID := unpackID[TaskID](u)
	iv := decodeInterval(u)
	aggParam := u.UnpackVarBytes()
	if u.Err != nil {
		return CollectReq{}, u.Err
	}
	if !u.Done() {
		return CollectReq{}, codec.ErrUnexpectedValue
	}
	return CollectReq{TaskID: taskID, Interval: iv, AggParam: aggParam}, nil
}

// CollectResp carries the encrypted aggregate shares (one per aggregator)
// the collector needs to reconstruct the result.
type CollectResp struct {
	EncryptedAggShares []HpkeCiphertext
}

func (r CollectResp) Encode() []byte {
	p := codec.NewPacker(64)
	p.PackVector(len(r.EncryptedAggShares), func(i int) {
		r.EncryptedAggShares[i].Encode(p)
	})
	return p.Bytes
}

func DecodeCollectResp(b []byte) (CollectResp, error) {
	u := codec.NewUnpacker(b)
	var shares []HpkeCiphertext
	u.UnpackVector(func(i int) {
		shares = append(shares, decodeHpkeCiphertext(u))
	})
	if u.Err != nil {
		return CollectResp{}, u.Err
	}
	if !u.Done() {
		return CollectResp{}, codec.ErrUnexpectedValue
	}
	return CollectResp{EncryptedAggShares: shares}, nil
}

// AggregateShareReq is the Leader's replay-safe request for the Helper's
// aggregate share over a batch span: report_count and checksum let the
// Helper detect a batch-definition mismatch (spec §7 BatchMismatch).
type AggregateShareReq struct {
	TaskID      TaskID
	Interval    Interval
	AggParam    []byte
	ReportCount uint64
	Checksum    [32]byte
}

func (r AggregateShareReq) Encode() []byte {
	p := codec.NewPacker(96)
	packID(p, r.TaskID)
	r.Interval.Encode(p)
	p.PackVarBytes(r.AggParam)
	p.PackUint64(r.ReportCount)
	p.PackFixedBytes(r.Checksum[:])
	return p.Bytes
}

func DecodeAggregateShareReq(b []byte) (AggregateShareReq, error) {
	u := codec.NewUnpacker(b)
	taskID := unpackID[TaskID](u)
	iv := decodeInterval(u)
	aggParam := u.UnpackVarBytes()
	reportCount := u.UnpackUint64()
	checksumBytes := u.UnpackFixedBytes(32)
	if u.Err != nil {
		return AggregateShareReq{}, u.Err
	}
	if !u.Done() {
		return AggregateShareReq{}, codec.ErrUnexpectedValue
	}
	var checksum [32]byte
	copy(checksum[:], checksumBytes)
	return AggregateShareReq{
		TaskID:      taskID,
		Interval:    iv,
		AggParam:    aggParam,
		ReportCount: reportCount,
		Checksum:    checksum,
	}, nil
}

// AggregateShareResp carries the Helper's encrypted aggregate share.
type AggregateShareResp struct {
	EncryptedAggShare HpkeCiphertext
}

func (r AggregateShareResp) Encode() []byte {
	p := codec.NewPacker(64)
	r.EncryptedAggShare.Encode(p)
	return p.Bytes
}

func DecodeAggregateShareResp(b []byte) (AggregateShareResp, error) {
	u := codec.NewUnpacker(b)
	share := decodeHpkeCiphertext(u)
	if u.Err != nil {
		return AggregateShareResp{}, u.Err
	}
	if !u.Done() {
		return AggregateShareResp{}, codec.ErrUnexpectedValue
	}
	return AggregateShareResp{EncryptedAggShare: share}, nil
}
