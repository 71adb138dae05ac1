// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/driver/drivermock"
	"github.com/luxfi/dap-aggregator/hpke"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/storage/memstore"
	"github.com/luxfi/dap-aggregator/vdaf/sum"
)

func metadataBytes(md messages.ReportMetadata) []byte {
	b := make([]byte, 0, 40)
	b = append(b, md.ID[:]...)
	t := uint64(md.Time)
	for i := 7; i >= 0; i-- {
		b = append(b, byte(t>>(8*uint(i))))
	}
	return b
}

func sealInputShare(t *testing.T, kp hpke.KeyPair, taskID messages.TaskID, md messages.ReportMetadata, receiverIsHelper bool, value uint64) messages.HpkeCiphertext {
	t.Helper()
	info := hpke.InputShareInfo(taskID, receiverIsHelper)
	aad := hpke.InputShareAAD(metadataBytes(md), nil)
	share := sum.Share{Total: value}
	ct, err := hpke.Seal(kp.Config, info, aad, share.Encode())
	require.NoError(t, err)
	return ct
}

func newLeaderAndHelper(t *testing.T) (*Leader, *Helper, config.TaskConfig, hpke.KeyPair, hpke.KeyPair) {
	t.Helper()
	taskID := messages.TaskID{3}
	cfg := config.Default(taskID)

	leaderReg := hpke.NewRegistry()
	leaderKP, err := hpke.GenerateKeyPair(1)
	require.NoError(t, err)
	leaderReg.Add(leaderKP)

	helperReg := hpke.NewRegistry()
	helperKP, err := hpke.GenerateKeyPair(1)
	require.NoError(t, err)
	helperReg.Add(helperKP)

	helper := &Helper{Store: memstore.New(), Registry: helperReg, Vdaf: sum.Vdaf{}}
	leader := &Leader{Store: memstore.New(), Registry: leaderReg, Vdaf: sum.Vdaf{}}
	return leader, helper, cfg, leaderKP, helperKP
}

func TestRunAggregationJobCommitsBothShares(t *testing.T) {
	leader, helper, cfg, leaderKP, helperKP := newLeaderAndHelper(t)
	now := messages.Time(10_000)
	md1 := messages.ReportMetadata{ID: messages.ReportID{1}, Time: now}
	md2 := messages.ReportMetadata{ID: messages.ReportID{2}, Time: now}

	reports := []messages.Report{
		{
			TaskID:   cfg.TaskID,
			Metadata: md1,
			EncryptedInputShares: [2]messages.HpkeCiphertext{
				sealInputShare(t, leaderKP, cfg.TaskID, md1, false, 3),
				sealInputShare(t, helperKP, cfg.TaskID, md1, true, 4),
			},
		},
		{
			TaskID:   cfg.TaskID,
			Metadata: md2,
			EncryptedInputShares: [2]messages.HpkeCiphertext{
				sealInputShare(t, leaderKP, cfg.TaskID, md2, false, 10),
				sealInputShare(t, helperKP, cfg.TaskID, md2, true, 11),
			},
		},
	}

	leader.Helper = InProcessHelper{Helper: helper, Config: cfg, Now: now}

	aggJobID := messages.AggregationJobID{1}
	pbs := messages.PartialBatchSelector{}
	ctx := context.Background()
	finalState, err := leader.RunAggregationJob(ctx, cfg, now, pbs, aggJobID, nil, reports)
	require.NoError(t, err)
	require.Equal(t, LeaderCommitted, finalState)

	bucket := messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: cfg.BatchWindow(now)}

	leaderEntry, ok, err := leader.Store.AggStoreGet(ctx, cfg.TaskID, bucket)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sum.Share{Total: 13}, leaderEntry.Share) // leader's own additive shares: 3 + 10

	helperEntry, ok, err := helper.Store.AggStoreGet(ctx, cfg.TaskID, bucket)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sum.Share{Total: 15}, helperEntry.Share) // helper's own additive shares: 4 + 11
}

func TestRunAggregationJobNoReportsCommitsEmpty(t *testing.T) {
	leader, helper, cfg, _, _ := newLeaderAndHelper(t)
	now := messages.Time(10_000)
	leader.Helper = InProcessHelper{Helper: helper, Config: cfg, Now: now}

	finalState, err := leader.RunAggregationJob(context.Background(), cfg, now, messages.PartialBatchSelector{}, messages.AggregationJobID{2}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, LeaderCommitted, finalState)
}

func TestRunAggregationJobDropsHpkeDecryptFailure(t *testing.T) {
	leader, helper, cfg, leaderKP, helperKP := newLeaderAndHelper(t)
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{9}, Time: now}

	leaderCT := sealInputShare(t, leaderKP, cfg.TaskID, md, false, 5)
	helperCT := sealInputShare(t, helperKP, cfg.TaskID, md, true, 6)
	helperCT.Payload[0] ^= 0xff // corrupt so the Helper's decrypt fails

	reports := []messages.Report{{
		TaskID:               cfg.TaskID,
		Metadata:             md,
		EncryptedInputShares: [2]messages.HpkeCiphertext{leaderCT, helperCT},
	}}

	leader.Helper = InProcessHelper{Helper: helper, Config: cfg, Now: now}

	finalState, err := leader.RunAggregationJob(context.Background(), cfg, now, messages.PartialBatchSelector{}, messages.AggregationJobID{3}, nil, reports)
	require.NoError(t, err)
	require.Equal(t, LeaderCommitted, finalState)

	bucket := messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: cfg.BatchWindow(now)}
	_, ok, err := leader.Store.AggStoreGet(context.Background(), cfg.TaskID, bucket)
	require.NoError(t, err)
	require.False(t, ok) // nothing merged: the report was dropped, not committed
}

// TestRunAggregationJobAbortsOnHelperTransportError exercises a Helper that
// is unreachable (a network/transport failure, not a protocol-level
// rejection). A hand-written fake can't distinguish "the wire call itself
// failed" from "the wire call succeeded with an error transition" as
// cleanly as a mock that asserts exactly one call and returns a bare error;
// a live or in-process Helper never produces this condition.
func TestRunAggregationJobAbortsOnHelperTransportError(t *testing.T) {
	leader, _, cfg, leaderKP, helperKP := newLeaderAndHelper(t)
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{7}, Time: now}

	reports := []messages.Report{{
		TaskID:   cfg.TaskID,
		Metadata: md,
		EncryptedInputShares: [2]messages.HpkeCiphertext{
			sealInputShare(t, leaderKP, cfg.TaskID, md, false, 1),
			sealInputShare(t, helperKP, cfg.TaskID, md, true, 2),
		},
	}}

	ctrl := gomock.NewController(t)
	helperClient := drivermock.NewMockHelperClient(ctrl)
	helperClient.EXPECT().
		AggregationJobInit(gomock.Any(), gomock.Any()).
		Return(messages.AggregationJobResp{}, errors.New("dial tcp: connection refused"))
	leader.Helper = helperClient

	finalState, err := leader.RunAggregationJob(context.Background(), cfg, now, messages.PartialBatchSelector{}, messages.AggregationJobID{4}, nil, reports)
	require.Error(t, err)
	require.Equal(t, LeaderAborted, finalState)
}

// TestRunAggregationJobAbortsOnHelperResponseLengthMismatch exercises a
// Helper that responds but with the wrong number of transitions, a
// malformed-but-well-formed-HTTP response a real Helper bug could produce.
func TestRunAggregationJobAbortsOnHelperResponseLengthMismatch(t *testing.T) {
	leader, _, cfg, leaderKP, helperKP := newLeaderAndHelper(t)
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{8}, Time: now}

	reports := []messages.Report{{
		TaskID:   cfg.TaskID,
		Metadata: md,
		EncryptedInputShares: [2]messages.HpkeCiphertext{
			sealInputShare(t, leaderKP, cfg.TaskID, md, false, 1),
			sealInputShare(t, helperKP, cfg.TaskID, md, true, 2),
		},
	}}

	ctrl := gomock.NewController(t)
	helperClient := drivermock.NewMockHelperClient(ctrl)
	helperClient.EXPECT().
		AggregationJobInit(gomock.Any(), gomock.Any()).
		Return(messages.AggregationJobResp{Transitions: nil}, nil)
	leader.Helper = helperClient

	finalState, err := leader.RunAggregationJob(context.Background(), cfg, now, messages.PartialBatchSelector{}, messages.AggregationJobID{5}, nil, reports)
	require.Error(t, err)
	require.Equal(t, LeaderAborted, finalState)
}

// TestRunCollectionJobSumsBothAggregators exercises spec §2's final
// collection step end to end: once both aggregators have committed their
// shares, RunCollectionJob fetches the Leader's own share, pulls the
// Helper's over HelperClient, and seals both to the collector's HPKE
// config. The collector-decrypted sum must equal the two reports' true
// measurements (spec §8 scenario 1).
func TestRunCollectionJobSumsBothAggregators(t *testing.T) {
	leader, helper, cfg, leaderKP, helperKP := newLeaderAndHelper(t)
	collectKP, err := hpke.GenerateKeyPair(9)
	require.NoError(t, err)
	cfg.CollectorHpkeConfig = collectKP.Config

	now := messages.Time(10_000)
	md1 := messages.ReportMetadata{ID: messages.ReportID{21}, Time: now}
	md2 := messages.ReportMetadata{ID: messages.ReportID{22}, Time: now}
	reports := []messages.Report{
		{
			TaskID:   cfg.TaskID,
			Metadata: md1,
			EncryptedInputShares: [2]messages.HpkeCiphertext{
				sealInputShare(t, leaderKP, cfg.TaskID, md1, false, 3),
				sealInputShare(t, helperKP, cfg.TaskID, md1, true, 4),
			},
		},
		{
			TaskID:   cfg.TaskID,
			Metadata: md2,
			EncryptedInputShares: [2]messages.HpkeCiphertext{
				sealInputShare(t, leaderKP, cfg.TaskID, md2, false, 10),
				sealInputShare(t, helperKP, cfg.TaskID, md2, true, 11),
			},
		},
	}
	leader.Helper = InProcessHelper{Helper: helper, Config: cfg, Now: now}

	ctx := context.Background()
	finalState, err := leader.RunAggregationJob(ctx, cfg, now, messages.PartialBatchSelector{}, messages.AggregationJobID{6}, nil, reports)
	require.NoError(t, err)
	require.Equal(t, LeaderCommitted, finalState)

	iv := messages.Interval{Start: cfg.BatchWindow(now), Duration: cfg.TimePrecision}
	batchSel := messages.BatchSelector{Kind: messages.BatchTimeInterval, Interval: iv}
	collectResp, err := leader.RunCollectionJob(ctx, cfg, batchSel, nil)
	require.NoError(t, err)
	require.Len(t, collectResp.EncryptedAggShares, 2)

	aad := hpke.AggregateShareAAD(cfg.TaskID, nil)
	var total uint64
	for i, ct := range collectResp.EncryptedAggShares {
		receiverIsHelper := i == 1
		pt, err := hpke.Open(cfg.CollectorHpkeConfig, collectKP.PrivateKey, ct, hpke.AggregateShareInfo(cfg.TaskID, receiverIsHelper), aad)
		require.NoError(t, err)
		share, err := sum.Decode(pt)
		require.NoError(t, err)
		total += share.Total
	}
	require.Equal(t, uint64(28), total) // (3+4) + (10+11)

	// A second collection over the same span must see both aggregators'
	// stores already frozen.
	_, err = leader.RunCollectionJob(ctx, cfg, batchSel, nil)
	require.Error(t, err)
}

func TestRunCollectionJobRejectsFixedSize(t *testing.T) {
	leader, helper, cfg, _, _ := newLeaderAndHelper(t)
	leader.Helper = InProcessHelper{Helper: helper, Config: cfg, Now: messages.Time(10_000)}

	batchSel := messages.BatchSelector{Kind: messages.BatchFixedSize, BatchID: messages.BatchID{1}}
	_, err := leader.RunCollectionJob(context.Background(), cfg, batchSel, nil)
	require.Error(t, err)
}
