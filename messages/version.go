// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messages

// DapVersion selects the minor wire-layout variant in effect for a task.
// It is carried in the URL path and in task configuration; an aggregator
// must reject any message whose version does not match the request path
// (see SPEC_FULL.md §1 "Configuration" / spec.md Design Note on versioning).
type DapVersion uint8

const (
	// Draft02 is the pre-public_share Report layout used by the draft-02
	// era wire format (the shape original_source/daphne implements).
	Draft02 DapVersion = iota
	// DraftLatest adds a VDAF public_share to Report, between metadata and
	// ignored extensions.
	DraftLatest
)

func (v DapVersion) String() string {
	switch v {
	case Draft02:
		return "draft02"
	case DraftLatest:
		return "latest"
	default:
		return "unknown"
	}
}

// Valid reports whether v is a recognized version.
func (v DapVersion) Valid() bool {
	return v == Draft02 || v == DraftLatest
}
