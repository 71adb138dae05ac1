// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reportinit implements spec §4.3's report initializer: for each
// ReportShare in an AggregationJobInitReq, run the ordered rejection
// chain (ReportDropped → HpkeUnknownConfigID → HpkeDecryptError →
// ReportReplayed → BatchCollected → VdafPrepError) and produce either a
// Ready state carrying the VDAF's first prep share, or a terminal
// TransitionFailure.
package reportinit

import (
	"context"

	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/hpke"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/storage"
	"github.com/luxfi/dap-aggregator/vdaf"
)

// EarlyReportState is one report's outcome from initialization: either
// Ready (VDAF prep started, PrepState/PrepShare populated) or rejected
// with Failure set and Ready false.
type EarlyReportState struct {
	ReportID   messages.ReportID
	Bucket     messages.DapBatchBucket
	Ready      bool
	PrepState  vdaf.PrepState
	PrepShare  []byte
	InputShare []byte // the decrypted input share; callers that don't keep PrepState in memory between rounds can re-derive it via PrepInit
	Failure    messages.TransitionFailure
}

// bucketFor assigns a report to its bucket: time-interval tasks quantize
// the report's own timestamp; fixed-size tasks use the job's shared
// partial batch selector (the batch id was already chosen by the Leader
// work engine before the job was built).
func bucketFor(cfg config.TaskConfig, pbs messages.PartialBatchSelector, reportTime messages.Time) messages.DapBatchBucket {
	if cfg.QueryType == config.QueryFixedSize {
		return messages.DapBatchBucket{Kind: messages.BatchFixedSize, BatchID: pbs.BatchID}
	}
	return messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: cfg.BatchWindow(reportTime)}
}

// InitReports runs report-init over shares, in order. receiverIsHelper
// selects which HPKE role's info string this aggregator decrypts as.
func InitReports(
	ctx context.Context,
	now messages.Time,
	cfg config.TaskConfig,
	registry *hpke.Registry,
	v vdaf.Vdaf,
	store storage.Store,
	receiverIsHelper bool,
	verifyKey, aggParam []byte,
	pbs messages.PartialBatchSelector,
	shares []messages.ReportShare,
) ([]EarlyReportState, error) {
	out := make([]EarlyReportState, 0, len(shares))

	reportIDs := make([]messages.ReportID, len(shares))
	for i, s := range shares {
		reportIDs[i] = s.Metadata.ID
	}
	alreadyProcessed, err := store.PeekProcessed(ctx, cfg.TaskID, reportIDs)
	if err != nil {
		return nil, err
	}

	for _, share := range shares {
		md := share.Metadata
		bucket := bucketFor(cfg, pbs, md.Time)
		state := EarlyReportState{ReportID: md.ID, Bucket: bucket}

		if !cfg.ReportTimeValid(md.Time, now) {
			state.Failure = messages.ReportDropped
			out = append(out, state)
			continue
		}

		if _, ok := registry.Config(share.EncryptedInputShare.ConfigID); !ok {
			state.Failure = messages.HpkeUnknownConfigID
			out = append(out, state)
			continue
		}

		info := hpke.InputShareInfo(cfg.TaskID, receiverIsHelper)
		aad := hpke.InputShareAAD(encodeMetadata(md), nil)
		inputShare, err := registry.Open(share.EncryptedInputShare, info, aad)
		if err != nil {
			state.Failure = messages.HpkeDecryptError
			out = append(out, state)
			continue
		}

		if alreadyProcessed[md.ID] {
			state.Failure = messages.ReportReplayed
			out = append(out, state)
			continue
		}

		entry, ok, err := store.AggStoreGet(ctx, cfg.TaskID, bucket)
		if err != nil {
			return nil, err
		}
		if ok && entry.Collected {
			state.Failure = messages.BatchCollected
			out = append(out, state)
			continue
		}

		prepState, prepShare, err := v.PrepInit(verifyKey, aggParam, md.ID[:], nil, inputShare)
		if err != nil {
			state.Failure = messages.VdafPrepError
			out = append(out, state)
			continue
		}

		state.Ready = true
		state.PrepState = prepState
		state.PrepShare = prepShare
		state.InputShare = inputShare
		out = append(out, state)
	}

	return out, nil
}

func encodeMetadata(md messages.ReportMetadata) []byte {
	b := make([]byte, 0, 40)
	b = append(b, md.ID[:]...)
	t := uint64(md.Time)
	for i := 7; i >= 0; i-- {
		b = append(b, byte(t>>(8*uint(i))))
	}
	return b
}
