// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package driver implements the Leader and Helper halves of spec §4.4 and
// §4.5's aggregation-job state machine: report initialization has already
// happened by the time a job reaches here; this package drives VDAF prep
// rounds to completion and commits finished shares to the aggregate-share
// store.
package driver

import (
	"context"
	"errors"

	"github.com/luxfi/dap-aggregator/aggstore"
	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/dapabort"
	"github.com/luxfi/dap-aggregator/hpke"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/reportinit"
	"github.com/luxfi/dap-aggregator/storage"
	"github.com/luxfi/dap-aggregator/vdaf"
)

// Helper runs the Helper side of the aggregation-job protocol (spec
// §4.5).
type Helper struct {
	Store    storage.Store
	Registry *hpke.Registry
	Vdaf     vdaf.Vdaf
}

// HandleInitReq processes an AggregationJobInitReq. Job state is stored
// only when at least one report is still live after report-init: a
// duplicate request for such an agg_job_id returns the identical stored
// response without re-running report-init, while a duplicate for a job
// whose reports all failed runs report-init again.
func (h *Helper) HandleInitReq(ctx context.Context, cfg config.TaskConfig, now messages.Time, pbs messages.PartialBatchSelector, req messages.AggregationJobInitReq) (messages.AggregationJobResp, error) {
	if existing, ok, err := h.Store.GetHelperState(ctx, req.TaskID, req.AggJobID); err != nil {
		return messages.AggregationJobResp{}, err
	} else if ok {
		state, err := decodeHelperJobState(existing)
		if err != nil {
			return messages.AggregationJobResp{}, dapabort.Fatal("corrupt helper state", err)
		}
		return respFromRecords(state.records), nil
	}

	states, err := reportinit.InitReports(ctx, now, cfg, h.Registry, h.Vdaf, h.Store, true, cfg.VdafVerifyKey, req.AggParam, pbs, req.ReportShares)
	if err != nil {
		return messages.AggregationJobResp{}, err
	}

	records := make([]reportRecord, len(states))
	for i, s := range states {
		if s.Ready {
			records[i] = reportRecord{reportID: s.ReportID, bucket: s.Bucket, ready: true, prepShare: s.PrepShare, inputShare: s.InputShare}
		} else {
			records[i] = reportRecord{reportID: s.ReportID, bucket: s.Bucket, ready: false, failure: s.Failure}
		}
	}

	anyLive := false
	for _, r := range records {
		if r.ready {
			anyLive = true
			break
		}
	}
	if anyLive {
		if _, err := h.Store.PutHelperStateIfNotExists(ctx, req.TaskID, req.AggJobID, helperJobState{records: records}.encode()); err != nil {
			return messages.AggregationJobResp{}, err
		}
	}

	return respFromRecords(records), nil
}

func respFromRecords(records []reportRecord) messages.AggregationJobResp {
	transitions := make([]messages.Transition, len(records))
	for i, r := range records {
		if r.ready {
			transitions[i] = messages.Transition{ReportID: r.reportID, Kind: messages.TransitionContinued, PrepMsg: r.prepShare}
		} else {
			transitions[i] = messages.Transition{ReportID: r.reportID, Kind: messages.TransitionFailed, Failure: r.failure}
		}
	}
	return messages.AggregationJobResp{Transitions: transitions}
}

// HandleContinueReq processes an AggregationJobContinueReq: it must find
// exactly the live (Ready) reports from the matching init request, in the
// same order, or abort UnrecognizedMessage (spec §4.5 step 2).
func (h *Helper) HandleContinueReq(ctx context.Context, req messages.AggregationJobContinueReq) (messages.AggregationJobResp, error) {
	raw, ok, err := h.Store.GetHelperState(ctx, req.TaskID, req.AggJobID)
	if err != nil {
		return messages.AggregationJobResp{}, err
	}
	if !ok {
		return messages.AggregationJobResp{}, dapabort.New(dapabort.UnrecognizedAggregationJob, "no helper state for this agg_job_id").WithTask(req.TaskID[:])
	}
	state, err := decodeHelperJobState(raw)
	if err != nil {
		return messages.AggregationJobResp{}, dapabort.Fatal("corrupt helper state", err)
	}

	var live []reportRecord
	for _, r := range state.records {
		if r.ready {
			live = append(live, r)
		}
	}
	if len(live) != len(req.Transitions) {
		return messages.AggregationJobResp{}, dapabort.New(dapabort.UnrecognizedMessage, "transition count does not match live report count").WithTask(req.TaskID[:])
	}

	transitions := make([]messages.Transition, len(live))
	var span []storage.BucketDelta
	// mergeIdx maps a span entry back to its transitions slot, so a
	// per-bucket merge failure can demote that report from Finished to
	// Failed instead of lying to the Leader about what actually committed.
	var mergeIdx []int
	for i, r := range live {
		t := req.Transitions[i]
		if t.ReportID != r.reportID {
			return messages.AggregationJobResp{}, dapabort.New(dapabort.UnrecognizedMessage, "report id positional mismatch").WithTask(req.TaskID[:])
		}
		if t.Kind != messages.TransitionContinued {
			return messages.AggregationJobResp{}, dapabort.New(dapabort.UnrecognizedMessage, "expected continued transition").WithTask(req.TaskID[:])
		}

		prepState, _, err := h.Vdaf.PrepInit(nil, nil, r.reportID[:], nil, r.inputShare)
		if err != nil {
			transitions[i] = messages.Transition{ReportID: r.reportID, Kind: messages.TransitionFailed, Failure: messages.VdafPrepError}
			continue
		}
		_, _, done, out, err := h.Vdaf.PrepNext(prepState, t.PrepMsg)
		if err != nil || !done {
			transitions[i] = messages.Transition{ReportID: r.reportID, Kind: messages.TransitionFailed, Failure: messages.VdafPrepError}
			continue
		}
		transitions[i] = messages.Transition{ReportID: r.reportID, Kind: messages.TransitionFinished}
		span = append(span, storage.BucketDelta{Bucket: r.bucket, Delta: out, ReportIDs: []messages.ReportID{r.reportID}})
		mergeIdx = append(mergeIdx, i)
	}

	if len(span) > 0 {
		results, err := h.Store.AggStoreAtomicMerge(ctx, req.TaskID, span)
		if err != nil {
			return messages.AggregationJobResp{}, err
		}
		for i, delta := range span {
			res := results[delta.Bucket]
			if res.Outcome == storage.MergeOK {
				continue
			}
			failure := messages.BatchCollected
			if res.Outcome == storage.MergeReplaysDetected {
				failure = messages.ReportReplayed
			}
			idx := mergeIdx[i]
			transitions[idx] = messages.Transition{ReportID: live[idx].reportID, Kind: messages.TransitionFailed, Failure: failure}
		}
	}

	return messages.AggregationJobResp{Transitions: transitions}, nil
}

// HandleAggregateShareReq processes a Leader's request for this Helper's
// half of a batch span (spec §4.6, §6 POST .../aggregate_shares): it sums
// the span's buckets, cross-checks report_count/checksum against the
// Leader's view, seals the result to the collector's HPKE config, and
// freezes the span against further merges or reads.
func (h *Helper) HandleAggregateShareReq(ctx context.Context, cfg config.TaskConfig, req messages.AggregateShareReq) (messages.AggregateShareResp, error) {
	buckets := cfg.BucketsForSelector(messages.BatchSelector{Kind: messages.BatchTimeInterval, Interval: req.Interval})
	span, err := aggstore.GetAggShareWithMeta(ctx, h.Store, req.TaskID, buckets)
	if errors.Is(err, aggstore.ErrBatchOverlap) {
		return messages.AggregateShareResp{}, dapabort.New(dapabort.BatchOverlap, "batch span overlaps a prior collection").WithTask(req.TaskID[:])
	}
	if err != nil {
		return messages.AggregateShareResp{}, err
	}
	if span.ReportCount != req.ReportCount || span.Checksum != req.Checksum {
		return messages.AggregateShareResp{}, dapabort.New(dapabort.BatchMismatch, "report count or checksum does not match the Helper's view of this batch").WithTask(req.TaskID[:])
	}
	if span.Share == nil {
		return messages.AggregateShareResp{}, dapabort.New(dapabort.InvalidBatchSize, "batch span has no aggregated reports").WithTask(req.TaskID[:])
	}

	info := hpke.AggregateShareInfo(req.TaskID, true)
	aad := hpke.AggregateShareAAD(req.TaskID, req.AggParam)
	ct, err := hpke.Seal(cfg.CollectorHpkeConfig, info, aad, span.Share.Encode())
	if err != nil {
		return messages.AggregateShareResp{}, dapabort.Fatal("failed to seal aggregate share to collector config", err)
	}
	if err := h.Store.AggStoreMarkCollected(ctx, req.TaskID, buckets); err != nil {
		return messages.AggregateShareResp{}, err
	}

	return messages.AggregateShareResp{EncryptedAggShare: ct}, nil
}
