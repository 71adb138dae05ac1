// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sum implements a minimal two-party additive-share-of-a-sum VDAF:
// each aggregator holds one additive share of a client's uint64
// measurement, and an aggregate share is just the sum of its reports'
// shares. It deliberately skips the real FLP/zero-knowledge proof machinery
// a production VDAF (e.g. Prio3Sum) uses to verify a client didn't submit
// an out-of-range share — that is the explicit Non-goal of spec.md §1
// ("not the polynomial math"). It exists to drive vdaf.Vdaf end to end so
// the rest of the core can be tested without a real FLP implementation.
package sum

import (
	"encoding/binary"
	"errors"

	"github.com/luxfi/dap-aggregator/vdaf"
)

// ErrInputShareSize is returned when an input share isn't exactly 8 bytes.
var ErrInputShareSize = errors.New("sum: input share must be 8 bytes")

// Measurement is the client's plaintext value before secret-sharing.
type Measurement = uint64

// Share is this VDAF's aggregate accumulator: the running sum of every
// merged report's additive share.
type Share struct {
	Total uint64
}

var _ vdaf.Share = Share{}

func (s Share) Merge(delta vdaf.Share) (vdaf.Share, error) {
	d, ok := delta.(Share)
	if !ok {
		return nil, errors.New("sum: merge type mismatch")
	}
	return Share{Total: s.Total + d.Total}, nil
}

func (s Share) IsEmpty() bool { return s.Total == 0 }

func (s Share) Encode() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, s.Total)
	return b
}

// Decode parses bytes produced by Share.Encode.
func Decode(b []byte) (Share, error) {
	if len(b) != 8 {
		return Share{}, ErrInputShareSize
	}
	return Share{Total: binary.BigEndian.Uint64(b)}, nil
}

// Vdaf is the stateless sum VDAF. It has no verification key material
// beyond what PrepInit is handed (accepted and ignored, mirroring a real
// VDAF's signature so swapping in one is a drop-in change).
type Vdaf struct{}

var _ vdaf.Vdaf = Vdaf{}

type prepState struct {
	share uint64
}

// PrepInit parses the 8-byte additive share and returns it as both the
// local prep state and the outbound prep share (sent to the peer as
// Transition.Continued).
func (Vdaf) PrepInit(_, _, _, _, inputShare []byte) (vdaf.PrepState, []byte, error) {
	if len(inputShare) != 8 {
		return nil, nil, ErrInputShareSize
	}
	v := binary.BigEndian.Uint64(inputShare)
	return prepState{share: v}, inputShare, nil
}

// PrepNext finalizes in one round: this stand-in VDAF has no joint proof
// to check, so peerMsg is accepted without further validation and the
// aggregator's own recorded share becomes its terminal Share.
func (Vdaf) PrepNext(state vdaf.PrepState, peerMsg []byte) (vdaf.PrepState, []byte, bool, vdaf.Share, error) {
	ps, ok := state.(prepState)
	if !ok {
		return nil, nil, false, nil, vdaf.ErrPrep
	}
	if len(peerMsg) != 8 {
		return nil, nil, false, nil, vdaf.ErrPrep
	}
	return nil, nil, true, Share{Total: ps.share}, nil
}

func (Vdaf) IsSingleRound() bool { return true }

// Combine produces the joint prep message from the Leader's and Helper's
// prep shares. For a real VDAF this runs the FLP's joint-verification
// reduction; here it is the identity on the Leader's share, since there is
// no proof to fold in — both aggregators accept each other's raw additive
// share unchecked, matching PrepNext's lack of a joint proof check.
func (Vdaf) Combine(leaderPrepShare, _ []byte) ([]byte, error) {
	if len(leaderPrepShare) != 8 {
		return nil, ErrInputShareSize
	}
	out := make([]byte, len(leaderPrepShare))
	copy(out, leaderPrepShare)
	return out, nil
}
