// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package driver

import (
	"context"
	"errors"
	"time"

	"github.com/luxfi/dap-aggregator/aggstore"
	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/dapabort"
	"github.com/luxfi/dap-aggregator/hpke"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/metrics"
	"github.com/luxfi/dap-aggregator/reportinit"
	"github.com/luxfi/dap-aggregator/storage"
	"github.com/luxfi/dap-aggregator/vdaf"
)

// LeaderJobState is one step of the Leader's aggregation-job state machine
// (spec §4.4): Start -> AwaitingInitResp -> AwaitingContResp -> Committing
// -> Committed, short-circuiting to Aborted on any DapAbort-worthy
// response from the Helper.
type LeaderJobState uint8

const (
	LeaderStart LeaderJobState = iota
	LeaderAwaitingInitResp
	LeaderAwaitingContResp
	LeaderCommitting
	LeaderCommitted
	LeaderAborted
)

// HelperClient is the Leader's view of the wire to a Helper aggregator.
// The transport package supplies the HTTP-backed implementation; tests use
// an in-process one wrapping a *Helper directly.
type HelperClient interface {
	AggregationJobInit(ctx context.Context, req messages.AggregationJobInitReq) (messages.AggregationJobResp, error)
	AggregationJobContinue(ctx context.Context, req messages.AggregationJobContinueReq) (messages.AggregationJobResp, error)
	AggregateShare(ctx context.Context, req messages.AggregateShareReq) (messages.AggregateShareResp, error)
}

// Leader runs the Leader side of the aggregation-job protocol (spec §4.4).
type Leader struct {
	Store    storage.Store
	Registry *hpke.Registry
	Vdaf     vdaf.Vdaf
	Helper   HelperClient

	// Metrics is optional; a nil Metrics disables instrumentation.
	Metrics *metrics.DAPMetrics
}

// leaderReport is one report's running state across the job's rounds.
type leaderReport struct {
	reportID  messages.ReportID
	bucket    messages.DapBatchBucket
	live      bool // both sides still in play for this report
	prepState vdaf.PrepState
	prepShare []byte
}

// RunAggregationJob drives one aggregation job from Start to Committed (or
// Aborted) over reports, a batch of client Reports the Leader has not yet
// assigned to any other job. It returns the terminal state reached; a
// non-nil error accompanies LeaderAborted for a protocol-level abort, or
// is a fatal storage/internal error with no well-defined terminal state.
func (l *Leader) RunAggregationJob(
	ctx context.Context,
	cfg config.TaskConfig,
	now messages.Time,
	pbs messages.PartialBatchSelector,
	aggJobID messages.AggregationJobID,
	aggParam []byte,
	reports []messages.Report,
) (state LeaderJobState, err error) {
	if l.Metrics != nil {
		defer func() {
			outcome := metrics.OutcomeCommitted
			if state != LeaderCommitted {
				outcome = metrics.OutcomeAborted
			}
			l.Metrics.AggregationJobsTotal.WithLabelValues(string(outcome)).Inc()
		}()
	}

	leaderShares := make([]messages.ReportShare, len(reports))
	helperShares := make([]messages.ReportShare, len(reports))
	for i, r := range reports {
		leaderShares[i] = messages.ReportShare{Metadata: r.Metadata, EncryptedInputShare: r.EncryptedInputShares[0]}
		helperShares[i] = messages.ReportShare{Metadata: r.Metadata, EncryptedInputShare: r.EncryptedInputShares[1]}
	}

	leaderStates, err := reportinit.InitReports(ctx, now, cfg, l.Registry, l.Vdaf, l.Store, false, cfg.VdafVerifyKey, aggParam, pbs, leaderShares)
	if err != nil {
		return LeaderAborted, err
	}

	initResp, err := l.Helper.AggregationJobInit(ctx, messages.AggregationJobInitReq{
		TaskID:       cfg.TaskID,
		AggJobID:     aggJobID,
		AggParam:     aggParam,
		PartBatchSel: pbs,
		ReportShares: helperShares,
	})
	if err != nil {
		return LeaderAborted, err
	}
	if len(initResp.Transitions) != len(leaderStates) {
		return LeaderAborted, dapabort.New(dapabort.UnrecognizedMessage, "helper init response length mismatch").WithTask(cfg.TaskID[:])
	}

	reportsByPos := make([]leaderReport, len(leaderStates))
	var contTransitions []messages.Transition
	for i, ls := range leaderStates {
		rep := leaderReport{reportID: ls.ReportID, bucket: ls.Bucket}
		helperT := initResp.Transitions[i]
		if helperT.ReportID != ls.ReportID {
			return LeaderAborted, dapabort.New(dapabort.UnrecognizedMessage, "helper init response report id mismatch").WithTask(cfg.TaskID[:])
		}
		if ls.Ready && helperT.Kind == messages.TransitionContinued {
			combined, err := l.Vdaf.Combine(ls.PrepShare, helperT.PrepMsg)
			if err != nil {
				rep.live = false
			} else {
				rep.live = true
				rep.prepState = ls.PrepState
				rep.prepShare = combined
				contTransitions = append(contTransitions, messages.Transition{ReportID: ls.ReportID, Kind: messages.TransitionContinued, PrepMsg: combined})
			}
		}
		reportsByPos[i] = rep
	}

	var span []storage.BucketDelta
	if len(contTransitions) > 0 {
		contResp, err := l.Helper.AggregationJobContinue(ctx, messages.AggregationJobContinueReq{
			TaskID:      cfg.TaskID,
			AggJobID:    aggJobID,
			Transitions: contTransitions,
		})
		if err != nil {
			return LeaderAborted, err
		}
		if len(contResp.Transitions) != len(contTransitions) {
			return LeaderAborted, dapabort.New(dapabort.UnrecognizedMessage, "helper continue response length mismatch").WithTask(cfg.TaskID[:])
		}

		helperFinished := make(map[messages.ReportID]bool, len(contResp.Transitions))
		for i, t := range contResp.Transitions {
			if t.ReportID != contTransitions[i].ReportID {
				return LeaderAborted, dapabort.New(dapabort.UnrecognizedMessage, "helper continue response report id mismatch").WithTask(cfg.TaskID[:])
			}
			if t.Kind == messages.TransitionFinished {
				helperFinished[t.ReportID] = true
			}
		}

		for i := range reportsByPos {
			rep := &reportsByPos[i]
			if !rep.live {
				continue
			}
			_, _, done, out, err := l.Vdaf.PrepNext(rep.prepState, rep.prepShare)
			if err != nil || !done || !helperFinished[rep.reportID] {
				continue
			}
			span = append(span, storage.BucketDelta{Bucket: rep.bucket, Delta: out, ReportIDs: []messages.ReportID{rep.reportID}})
		}
	}

	if len(span) == 0 {
		return LeaderCommitted, nil
	}

	mergeStart := time.Now()
	results, err := l.Store.AggStoreAtomicMerge(ctx, cfg.TaskID, span)
	if l.Metrics != nil {
		l.Metrics.MergeDuration.Observe(time.Since(mergeStart).Seconds())
	}
	if err != nil {
		return LeaderAborted, err
	}
	for _, r := range results {
		if r.Outcome != storage.MergeOK {
			return LeaderAborted, dapabort.New(dapabort.BatchOverlap, "a bucket in this job's span is already collected or saw a replay").WithTask(cfg.TaskID[:])
		}
	}

	return LeaderCommitted, nil
}

// RunCollectionJob drives spec §4.6's final collection step: it fetches
// the Leader's own aggregate share for batchSel, requests the Helper's
// share over the same span, seals the Leader's half to the collector's
// HPKE config, and freezes the span so neither aggregator can merge or
// re-collect it. Fixed-size collection is not yet supported: AggregateShareReq
// carries only an Interval, so there is no wire representation for a
// batch_id-selected span.
func (l *Leader) RunCollectionJob(ctx context.Context, cfg config.TaskConfig, batchSel messages.BatchSelector, aggParam []byte) (messages.CollectResp, error) {
	if batchSel.Kind != messages.BatchTimeInterval {
		return messages.CollectResp{}, dapabort.New(dapabort.BadRequest, "fixed-size collection jobs are not supported by this aggregator").WithTask(cfg.TaskID[:])
	}

	buckets := cfg.BucketsForSelector(batchSel)
	span, err := aggstore.GetAggShareWithMeta(ctx, l.Store, cfg.TaskID, buckets)
	if errors.Is(err, aggstore.ErrBatchOverlap) {
		return messages.CollectResp{}, dapabort.New(dapabort.BatchOverlap, "batch span overlaps a prior collection").WithTask(cfg.TaskID[:])
	}
	if err != nil {
		return messages.CollectResp{}, err
	}
	if span.Share == nil {
		return messages.CollectResp{}, dapabort.New(dapabort.InvalidBatchSize, "batch span has no aggregated reports").WithTask(cfg.TaskID[:])
	}

	helperResp, err := l.Helper.AggregateShare(ctx, messages.AggregateShareReq{
		TaskID:      cfg.TaskID,
		Interval:    batchSel.Interval,
		AggParam:    aggParam,
		ReportCount: span.ReportCount,
		Checksum:    span.Checksum,
	})
	if err != nil {
		return messages.CollectResp{}, err
	}

	info := hpke.AggregateShareInfo(cfg.TaskID, false)
	aad := hpke.AggregateShareAAD(cfg.TaskID, aggParam)
	leaderCT, err := hpke.Seal(cfg.CollectorHpkeConfig, info, aad, span.Share.Encode())
	if err != nil {
		return messages.CollectResp{}, dapabort.Fatal("failed to seal aggregate share to collector config", err)
	}
	if err := l.Store.AggStoreMarkCollected(ctx, cfg.TaskID, buckets); err != nil {
		return messages.CollectResp{}, err
	}

	return messages.CollectResp{EncryptedAggShares: []messages.HpkeCiphertext{leaderCT, helperResp.EncryptedAggShare}}, nil
}
