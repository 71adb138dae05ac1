// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vdaf captures the *shape* of VDAF interaction the driver needs —
// prep rounds, share merging, verification-key use — without specifying
// the polynomial arithmetic of a real FLP (explicit Non-goal, spec §1).
package vdaf

import "errors"

// ErrPrep is returned by PrepInit/PrepNext when the VDAF rejects its input;
// the driver turns this into a VdafPrepError transition failure, never a
// DapAbort (spec §4.3 rejection reason 6).
var ErrPrep = errors.New("vdaf: prep failed")

// PrepState is the VDAF's opaque per-report state between rounds. Helper
// state must remain serializable so a restarted Helper can resume
// (spec §9 "Helper state").
type PrepState any

// Share is the opaque, VDAF-type-dependent aggregate accumulator (spec §3
// "DapAggregateShare"). Merge must be associative and commutative for a
// fixed task/bucket.
type Share interface {
	// Merge folds delta into the receiver, returning the merged share.
	// Implementations must not mutate the receiver in place if it may be
	// aliased by a concurrent reader; aggstore serializes callers anyway.
	Merge(delta Share) (Share, error)
	// IsEmpty reports whether no measurement has been merged yet.
	IsEmpty() bool
	// Encode returns the collector-facing byte encoding.
	Encode() []byte
}

// Vdaf is the minimal interface the report initializer and driver need to
// drive preparation rounds and, eventually, produce a Share.
type Vdaf interface {
	// PrepInit starts preparation for one report. verifyKey is the task's
	// shared VDAF verification key (out of scope per §1: "not the
	// polynomial math", so it is opaque here too).
	PrepInit(verifyKey, aggParam, reportID, publicShare, inputShare []byte) (state PrepState, outbound []byte, err error)

	// PrepNext advances state with peerMsg (the other aggregator's prep
	// message for this round, or nil on the very first round if this side
	// goes first). done reports whether this report has reached a
	// terminal Share; if so, out is populated and outbound is nil.
	PrepNext(state PrepState, peerMsg []byte) (next PrepState, outbound []byte, done bool, out Share, err error)

	// IsSingleRound reports whether this VDAF always finishes in its first
	// PrepNext call. The driver does not consult it: the Helper stores its
	// job state after init whenever any report is still live.
	IsSingleRound() bool

	// Combine folds the Leader's and Helper's prep shares for one round
	// into the single prep message both sides then feed to PrepNext. The
	// Leader runs this; the Helper only ever consumes the result.
	Combine(leaderPrepShare, helperPrepShare []byte) ([]byte, error)
}
