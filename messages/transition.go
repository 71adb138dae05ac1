// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messages

import "github.com/luxfi/dap-aggregator/codec"

// TransitionFailure is a per-report, non-fatal failure code (spec §4.1).
// It is plain data carried in a Transition, not a Go error: recovering it
// drops the one report and leaves the rest of the job unaffected.
type TransitionFailure uint8

const (
	BatchCollected TransitionFailure = iota
	ReportReplayed
	ReportDropped
	HpkeUnknownConfigID
	HpkeDecryptError
	VdafPrepError
)

func (f TransitionFailure) String() string {
	switch f {
	case BatchCollected:
		return "batch-collected"
	case ReportReplayed:
		return "report-replayed"
	case ReportDropped:
		return "report-dropped"
	case HpkeUnknownConfigID:
		return "hpke-unknown-config-id"
	case HpkeDecryptError:
		return "hpke-decrypt-error"
	case VdafPrepError:
		return "vdaf-prep-error"
	default:
		return "unknown"
	}
}

// TransitionVarKind discriminates the Transition tagged union.
type TransitionVarKind uint8

const (
	TransitionContinued TransitionVarKind = iota
	TransitionFinished
	TransitionFailed
)

// Transition is one report's entry in an AggregationJobResp: the report
// either continues to another VDAF round, finishes, or fails.
type Transition struct {
	ReportID ReportID
	Kind     TransitionVarKind
	PrepMsg  []byte            // set iff Kind == TransitionContinued
	Failure  TransitionFailure // set iff Kind == TransitionFailed
}

func (t Transition) Encode(p *codec.Packer) {
	packID(p, t.ReportID)
	p.PackByte(byte(t.Kind))
	switch t.Kind {
	case TransitionContinued:
		p.PackVarBytes(t.PrepMsg)
	case TransitionFinished:
		// no payload
	case TransitionFailed:
		p.PackByte(byte(t.Failure))
	default:
		p.Err = codec.ErrUnexpectedValue
	}
}

func decodeTransition(u *codec.Unpacker) Transition {
	reportID := unpackID[ReportID](u)
	kind := TransitionVarKind(u.UnpackByte())
	t := Transition{ReportID: reportID, Kind: kind}
	switch kind {
	case TransitionContinued:
		t.PrepMsg = u.UnpackVarBytes()
	case TransitionFinished:
		// no payload
	case TransitionFailed:
		t.Failure = TransitionFailure(u.UnpackByte())
	default:
		u.Err = codec.ErrUnexpectedValue
	}
	return t
}
