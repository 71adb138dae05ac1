// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/hpke"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/storage/memstore"
	"github.com/luxfi/dap-aggregator/vdaf/sum"
)

func sealShare(t *testing.T, kp hpke.KeyPair, taskID messages.TaskID, md messages.ReportMetadata, value uint64) messages.HpkeCiphertext {
	t.Helper()
	info := hpke.InputShareInfo(taskID, true)
	b := make([]byte, 0, 40)
	b = append(b, md.ID[:]...)
	tm := uint64(md.Time)
	for i := 7; i >= 0; i-- {
		b = append(b, byte(tm>>(8*uint(i))))
	}
	aad := hpke.InputShareAAD(b, nil)
	share := sum.Share{Total: value}
	ct, err := hpke.Seal(kp.Config, info, aad, share.Encode())
	require.NoError(t, err)
	return ct
}

func newHelper(t *testing.T) (*Helper, config.TaskConfig, hpke.KeyPair) {
	t.Helper()
	taskID := messages.TaskID{7}
	cfg := config.Default(taskID)
	reg := hpke.NewRegistry()
	kp, err := hpke.GenerateKeyPair(1)
	require.NoError(t, err)
	reg.Add(kp)
	h := &Helper{Store: memstore.New(), Registry: reg, Vdaf: sum.Vdaf{}}
	return h, cfg, kp
}

func TestHandleInitReqHappyPath(t *testing.T) {
	h, cfg, kp := newHelper(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{1}, Time: now}
	ct := sealShare(t, kp, cfg.TaskID, md, 42)

	req := messages.AggregationJobInitReq{
		TaskID:       cfg.TaskID,
		AggJobID:     messages.AggregationJobID{9},
		ReportShares: []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}},
	}

	resp, err := h.HandleInitReq(ctx, cfg, now, messages.PartialBatchSelector{}, req)
	require.NoError(t, err)
	require.Len(t, resp.Transitions, 1)
	require.Equal(t, messages.TransitionContinued, resp.Transitions[0].Kind)
	require.Equal(t, md.ID, resp.Transitions[0].ReportID)
}

func TestHandleInitReqIsIdempotent(t *testing.T) {
	h, cfg, kp := newHelper(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{1}, Time: now}
	ct := sealShare(t, kp, cfg.TaskID, md, 42)

	req := messages.AggregationJobInitReq{
		TaskID:       cfg.TaskID,
		AggJobID:     messages.AggregationJobID{9},
		ReportShares: []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}},
	}

	first, err := h.HandleInitReq(ctx, cfg, now, messages.PartialBatchSelector{}, req)
	require.NoError(t, err)
	second, err := h.HandleInitReq(ctx, cfg, now, messages.PartialBatchSelector{}, req)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestHandleInitThenContinueMergesShare(t *testing.T) {
	h, cfg, kp := newHelper(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{2}, Time: now}
	ct := sealShare(t, kp, cfg.TaskID, md, 17)

	aggJobID := messages.AggregationJobID{5}
	initReq := messages.AggregationJobInitReq{
		TaskID:       cfg.TaskID,
		AggJobID:     aggJobID,
		ReportShares: []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}},
	}
	initResp, err := h.HandleInitReq(ctx, cfg, now, messages.PartialBatchSelector{}, initReq)
	require.NoError(t, err)
	require.Equal(t, messages.TransitionContinued, initResp.Transitions[0].Kind)

	contReq := messages.AggregationJobContinueReq{
		TaskID:   cfg.TaskID,
		AggJobID: aggJobID,
		Transitions: []messages.Transition{
			{ReportID: md.ID, Kind: messages.TransitionContinued, PrepMsg: initResp.Transitions[0].PrepMsg},
		},
	}
	contResp, err := h.HandleContinueReq(ctx, contReq)
	require.NoError(t, err)
	require.Len(t, contResp.Transitions, 1)
	require.Equal(t, messages.TransitionFinished, contResp.Transitions[0].Kind)

	bucket := messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: cfg.BatchWindow(now)}
	entry, ok, err := h.Store.AggStoreGet(ctx, cfg.TaskID, bucket)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sum.Share{Total: 17}, entry.Share)
}

func TestHandleContinueReqUnknownJob(t *testing.T) {
	h, cfg, _ := newHelper(t)
	ctx := context.Background()

	_, err := h.HandleContinueReq(ctx, messages.AggregationJobContinueReq{
		TaskID:   cfg.TaskID,
		AggJobID: messages.AggregationJobID{99},
	})
	require.Error(t, err)
}

// TestHandleContinueReqDemotesOnCollectedBucket covers the Collected-bucket
// invariant: a report whose VDAF prep finishes but whose bucket was already
// frozen by a prior collection must come back Failed(BatchCollected), never
// an optimistic Finished the Leader would wrongly trust.
func TestHandleContinueReqDemotesOnCollectedBucket(t *testing.T) {
	h, cfg, kp := newHelper(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{4}, Time: now}
	ct := sealShare(t, kp, cfg.TaskID, md, 9)

	aggJobID := messages.AggregationJobID{11}
	initResp, err := h.HandleInitReq(ctx, cfg, now, messages.PartialBatchSelector{}, messages.AggregationJobInitReq{
		TaskID:       cfg.TaskID,
		AggJobID:     aggJobID,
		ReportShares: []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}},
	})
	require.NoError(t, err)
	require.Equal(t, messages.TransitionContinued, initResp.Transitions[0].Kind)

	bucket := messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: cfg.BatchWindow(now)}
	require.NoError(t, h.Store.AggStoreMarkCollected(ctx, cfg.TaskID, []messages.DapBatchBucket{bucket}))

	contResp, err := h.HandleContinueReq(ctx, messages.AggregationJobContinueReq{
		TaskID:   cfg.TaskID,
		AggJobID: aggJobID,
		Transitions: []messages.Transition{
			{ReportID: md.ID, Kind: messages.TransitionContinued, PrepMsg: initResp.Transitions[0].PrepMsg},
		},
	})
	require.NoError(t, err)
	require.Len(t, contResp.Transitions, 1)
	require.Equal(t, messages.TransitionFailed, contResp.Transitions[0].Kind)
	require.Equal(t, messages.BatchCollected, contResp.Transitions[0].Failure)
}

func TestHandleContinueReqRejectsWrongTransitionCount(t *testing.T) {
	h, cfg, kp := newHelper(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{3}, Time: now}
	ct := sealShare(t, kp, cfg.TaskID, md, 1)

	aggJobID := messages.AggregationJobID{6}
	_, err := h.HandleInitReq(ctx, cfg, now, messages.PartialBatchSelector{}, messages.AggregationJobInitReq{
		TaskID:       cfg.TaskID,
		AggJobID:     aggJobID,
		ReportShares: []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}},
	})
	require.NoError(t, err)

	_, err = h.HandleContinueReq(ctx, messages.AggregationJobContinueReq{
		TaskID:      cfg.TaskID,
		AggJobID:    aggJobID,
		Transitions: nil,
	})
	require.Error(t, err)
}
