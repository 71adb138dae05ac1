// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messages

import "github.com/luxfi/dap-aggregator/codec"

// ReportMetadata identifies a report and carries the client-asserted time
// used for bucket assignment and validity-window checks (spec §3).
type ReportMetadata struct {
	ID   ReportID
	Time Time
}

func (m ReportMetadata) Encode(p *codec.Packer) {
	packID(p, m.ID)
	p.PackUint64(uint64(m.Time))
}

func decodeReportMetadata(u *codec.Unpacker) ReportMetadata {
	id := unpackID[ReportID](u)
	t := u.UnpackUint64()
	return ReportMetadata{ID: id, Time: Time(t)}
}

// HpkeCiphertext is an HPKE-sealed input share or aggregate share: enc is
// the KEM encapsulation, payload is AEAD ciphertext+tag.
type HpkeCiphertext struct {
	ConfigID uint8
	Enc      []byte
	Payload  []byte
}

func (c HpkeCiphertext) Encode(p *codec.Packer) {
	p.PackByte(c.ConfigID)
	p.PackVarBytes(c.Enc)
	p.PackVarBytes(c.Payload)
}

func decodeHpkeCiphertext(u *codec.Unpacker) HpkeCiphertext {
	configID := u.UnpackByte()
	enc := u.UnpackVarBytes()
	payload := u.UnpackVarBytes()
	return HpkeCiphertext{ConfigID: configID, Enc: enc, Payload: payload}
}

// Report is a client-submitted report: two HPKE-encrypted input shares, the
// first for the Leader, the second for the Helper.
type Report struct {
	TaskID               TaskID
	Metadata             ReportMetadata
	PublicShare          []byte // only encoded/decoded for DraftLatest
	EncryptedInputShares [2]HpkeCiphertext
}

// Encode writes the wire layout for version, following spec §4.1's Report
// row for Draft02 and inserting public_share for DraftLatest per the
// versioning Design Note (SPEC_FULL.md §3.1).
func (r Report) Encode(version DapVersion) []byte {
	p := codec.NewPacker(128)
	packID(p, r.TaskID)
	r.Metadata.Encode(p)
	if version == DraftLatest {
		p.PackVarBytes(r.PublicShare)
	}
	p.PackVarBytes(nil) // ignored extensions
	p.PackVector(len(r.EncryptedInputShares), func(i int) {
		r.EncryptedInputShares[i].Encode(p)
	})
	return p.Bytes
}

// DecodeReport parses a Report encoded for version.
func DecodeReport(version DapVersion, b []byte) (Report, error) {
	u := codec.NewUnpacker(b)
	taskID := unpackID[TaskID](u)
	metadata := decodeReportMetadata(u)
	var publicShare []byte
	if version == DraftLatest {
		publicShare = u.UnpackVarBytes()
	}
	u.UnpackVarBytes() // ignored extensions
	var list []HpkeCiphertext
	u.UnpackVector(func(i int) {
		list = append(list, decodeHpkeCiphertext(u))
	})
	if u.Err != nil {
		return Report{}, u.Err
	}
	if !u.Done() {
		return Report{}, codec.ErrUnexpectedValue
	}
	if len(list) != 2 {
		return Report{}, codec.ErrUnexpectedValue
	}
	var shares [2]HpkeCiphertext
	copy(shares[:], list)
	return Report{
		TaskID:               taskID,
		Metadata:             metadata,
		PublicShare:          publicShare,
		EncryptedInputShares: shares,
	}, nil
}

// ReportShare is the per-report payload of an AggregationJobInitReq: the
// metadata plus a single encrypted input share for the receiving aggregator.
type ReportShare struct {
	Metadata            ReportMetadata
	EncryptedInputShare HpkeCiphertext
}

func (s ReportShare) Encode(p *codec.Packer) {
	s.Metadata.Encode(p)
	p.PackVarBytes(nil) // ignored extensions
	s.EncryptedInputShare.Encode(p)
}

func decodeReportShare(u *codec.Unpacker) ReportShare {
	metadata := decodeReportMetadata(u)
	u.UnpackVarBytes() // ignored extensions
	share := decodeHpkeCiphertext(u)
	return ReportShare{Metadata: metadata, EncryptedInputShare: share}
}
