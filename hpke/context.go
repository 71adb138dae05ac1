// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hpke

import "github.com/luxfi/dap-aggregator/messages"

// Aggregator-role discriminant bytes used inside the HPKE info string, so
// a ciphertext sealed for the Leader can never be opened by the Helper's
// key even if both hold configs with the same id.
const (
	roleLeader uint8 = 1
	roleHelper uint8 = 2
)

var (
	labelInputShare     = []byte("dap-09 input share")
	labelAggregateShare = []byte("dap-09 aggregate share")
)

func role(receiverIsHelper bool) uint8 {
	if receiverIsHelper {
		return roleHelper
	}
	return roleLeader
}

// InputShareInfo builds the info string for sealing/opening a report's
// encrypted input share (spec §4.2: "constructed from protocol context —
// task id, role, metadata").
func InputShareInfo(taskID messages.TaskID, receiverIsHelper bool) []byte {
	info := make([]byte, 0, len(labelInputShare)+1+len(taskID))
	info = append(info, labelInputShare...)
	info = append(info, role(receiverIsHelper))
	info = append(info, taskID[:]...)
	return info
}

// InputShareAAD builds the associated data bound to an encrypted input
// share: the report metadata and public share, so tampering with either
// is caught by AEAD authentication (spec §4.2 byte-exact note).
func InputShareAAD(metadataBytes, publicShare []byte) []byte {
	aad := make([]byte, 0, len(metadataBytes)+len(publicShare))
	aad = append(aad, metadataBytes...)
	aad = append(aad, publicShare...)
	return aad
}

// AggregateShareInfo builds the info string for sealing/opening an
// aggregate share returned to the collector.
func AggregateShareInfo(taskID messages.TaskID, receiverIsHelper bool) []byte {
	info := make([]byte, 0, len(labelAggregateShare)+1+len(taskID))
	info = append(info, labelAggregateShare...)
	info = append(info, role(receiverIsHelper))
	info = append(info, taskID[:]...)
	return info
}

// AggregateShareAAD builds the associated data bound to an encrypted
// aggregate share: the task id and aggregation parameter.
func AggregateShareAAD(taskID messages.TaskID, aggParam []byte) []byte {
	aad := make([]byte, 0, len(taskID)+len(aggParam))
	aad = append(aad, taskID[:]...)
	aad = append(aad, aggParam...)
	return aad
}
