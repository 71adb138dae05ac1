// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bhex holds the small ambient helpers the core shares: base64url
// display encoding for opaque ids, constant-time comparison, and a UTC
// time source (Clock, RealClock, UnixSeconds). The transport handlers take
// "now" from transport.Deps.Now rather than from Clock.
package bhex

import (
	"crypto/subtle"
	"encoding/base64"
	"time"
)

// Encode renders raw bytes as unpadded base64url, the display form used for
// TaskId/ReportId/AggregationJobId/CollectionJobId/BatchId in logs, URLs
// and collector-facing JSON.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses the base64url display form back to raw bytes.
func Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// ConstantTimeEqual reports whether a and b hold the same bytes without
// branching on the content, used for bearer-token comparison.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Clock is the UTC time source; a field of this type (rather than a direct
// time.Now call) lets tests pin "now" for report-validity-window checks.
type Clock func() time.Time

// RealClock returns the wall-clock UTC time.
func RealClock() time.Time {
	return time.Now().UTC()
}

// UnixSeconds truncates t to whole seconds since the Unix epoch, the unit
// every protocol Time field uses.
func UnixSeconds(t time.Time) uint64 {
	secs := t.Unix()
	if secs < 0 {
		return 0
	}
	return uint64(secs)
}
