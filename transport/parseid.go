// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"github.com/luxfi/dap-aggregator/dapabort"
	"github.com/luxfi/dap-aggregator/internal/bhex"
	"github.com/luxfi/dap-aggregator/messages"
)

// parse32 decodes s (base64url, the display form every id uses on the
// wire per messages.TaskID.String() and friends) into a fixed 32-byte
// array, aborting BadRequest on any malformed or mis-sized value.
func parse32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := bhex.Decode(s)
	if err != nil || len(b) != len(out) {
		return out, dapabort.New(dapabort.BadRequest, "malformed id in request path")
	}
	copy(out[:], b)
	return out, nil
}

func parseTaskID(s string) (messages.TaskID, error) {
	id, err := parse32(s)
	if err != nil {
		return messages.TaskID{}, dapabort.New(dapabort.MissingTaskID, "malformed or missing task_id")
	}
	return messages.TaskID(id), nil
}

func parseAggJobID(s string) (messages.AggregationJobID, error) {
	id, err := parse32(s)
	return messages.AggregationJobID(id), err
}

func parseCollJobID(s string) (messages.CollectionJobID, error) {
	id, err := parse32(s)
	return messages.CollectionJobID(id), err
}
