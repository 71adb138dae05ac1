package reportinit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/hpke"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/storage"
	"github.com/luxfi/dap-aggregator/storage/memstore"
	"github.com/luxfi/dap-aggregator/vdaf/sum"
)

func sealShare(t *testing.T, kp hpke.KeyPair, taskID messages.TaskID, md messages.ReportMetadata, value uint64) messages.HpkeCiphertext {
	t.Helper()
	info := hpke.InputShareInfo(taskID, true)
	aad := hpke.InputShareAAD(encodeMetadata(md), nil)
	share := sum.Share{Total: value}
	ct, err := hpke.Seal(kp.Config, info, aad, share.Encode())
	require.NoError(t, err)
	return ct
}

func setup(t *testing.T) (config.TaskConfig, *hpke.Registry, *memstore.Store, hpke.KeyPair) {
	t.Helper()
	taskID := messages.TaskID{1}
	cfg := config.Default(taskID)
	reg := hpke.NewRegistry()
	kp, err := hpke.GenerateKeyPair(1)
	require.NoError(t, err)
	reg.Add(kp)
	return cfg, reg, memstore.New(), kp
}

func TestInitReportsReady(t *testing.T) {
	cfg, reg, store, kp := setup(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{1}, Time: now}
	ct := sealShare(t, kp, cfg.TaskID, md, 7)

	states, err := InitReports(ctx, now, cfg, reg, sum.Vdaf{}, store, true, nil, nil,
		messages.PartialBatchSelector{}, []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}})
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.True(t, states[0].Ready)
	require.Equal(t, md.ID, states[0].ReportID)
}

func TestInitReportsDropsOutOfWindow(t *testing.T) {
	cfg, reg, store, kp := setup(t)
	ctx := context.Background()
	now := messages.Time(10_000_000)
	md := messages.ReportMetadata{ID: messages.ReportID{1}, Time: 0}
	ct := sealShare(t, kp, cfg.TaskID, md, 7)

	states, err := InitReports(ctx, now, cfg, reg, sum.Vdaf{}, store, true, nil, nil,
		messages.PartialBatchSelector{}, []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}})
	require.NoError(t, err)
	require.False(t, states[0].Ready)
	require.Equal(t, messages.ReportDropped, states[0].Failure)
}

func TestInitReportsUnknownHpkeConfig(t *testing.T) {
	cfg, reg, store, _ := setup(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{1}, Time: now}
	ct := messages.HpkeCiphertext{ConfigID: 99, Enc: []byte("x"), Payload: []byte("y")}

	states, err := InitReports(ctx, now, cfg, reg, sum.Vdaf{}, store, true, nil, nil,
		messages.PartialBatchSelector{}, []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}})
	require.NoError(t, err)
	require.Equal(t, messages.HpkeUnknownConfigID, states[0].Failure)
}

func TestInitReportsDecryptError(t *testing.T) {
	cfg, reg, store, kp := setup(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{1}, Time: now}
	ct := sealShare(t, kp, cfg.TaskID, md, 7)
	ct.Payload[0] ^= 0xff

	states, err := InitReports(ctx, now, cfg, reg, sum.Vdaf{}, store, true, nil, nil,
		messages.PartialBatchSelector{}, []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}})
	require.NoError(t, err)
	require.Equal(t, messages.HpkeDecryptError, states[0].Failure)
}

func TestInitReportsReplay(t *testing.T) {
	cfg, reg, store, kp := setup(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{1}, Time: now}
	ct := sealShare(t, kp, cfg.TaskID, md, 7)
	share := messages.ReportShare{Metadata: md, EncryptedInputShare: ct}

	_, err := store.CheckAndSetProcessed(ctx, cfg.TaskID, []messages.ReportID{md.ID})
	require.NoError(t, err)

	states, err := InitReports(ctx, now, cfg, reg, sum.Vdaf{}, store, true, nil, nil,
		messages.PartialBatchSelector{}, []messages.ReportShare{share})
	require.NoError(t, err)
	require.Equal(t, messages.ReportReplayed, states[0].Failure)
}

func TestInitReportsBatchCollected(t *testing.T) {
	cfg, reg, store, kp := setup(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{1}, Time: now}
	ct := sealShare(t, kp, cfg.TaskID, md, 7)
	bucket := messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: cfg.BatchWindow(now)}

	_, err := store.AggStoreAtomicMerge(ctx, cfg.TaskID, []storage.BucketDelta{
		{Bucket: bucket, Delta: sum.Share{Total: 1}, ReportIDs: []messages.ReportID{{99}}},
	})
	require.NoError(t, err)
	require.NoError(t, store.AggStoreMarkCollected(ctx, cfg.TaskID, []messages.DapBatchBucket{bucket}))

	states, err := InitReports(ctx, now, cfg, reg, sum.Vdaf{}, store, true, nil, nil,
		messages.PartialBatchSelector{}, []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}})
	require.NoError(t, err)
	require.Equal(t, messages.BatchCollected, states[0].Failure)
}

func TestInitReportsVdafPrepError(t *testing.T) {
	cfg, reg, store, kp := setup(t)
	ctx := context.Background()
	now := messages.Time(10_000)
	md := messages.ReportMetadata{ID: messages.ReportID{1}, Time: now}
	info := hpke.InputShareInfo(cfg.TaskID, true)
	aad := hpke.InputShareAAD(encodeMetadata(md), nil)
	ct, err := hpke.Seal(kp.Config, info, aad, []byte("not-8-bytes"))
	require.NoError(t, err)

	states, err := InitReports(ctx, now, cfg, reg, sum.Vdaf{}, store, true, nil, nil,
		messages.PartialBatchSelector{}, []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}})
	require.NoError(t, err)
	require.Equal(t, messages.VdafPrepError, states[0].Failure)
}
