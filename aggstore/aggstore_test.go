package aggstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dap-aggregator/aggstore"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/storage"
	"github.com/luxfi/dap-aggregator/storage/memstore"
	"github.com/luxfi/dap-aggregator/vdaf/sum"
)

func TestGetAggShareSumsBuckets(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	taskID := messages.TaskID{1}
	b1 := messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: 0}
	b2 := messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: 3600}

	_, err := aggstore.TryPutAggShareSpan(ctx, store, taskID, []storage.BucketDelta{
		{Bucket: b1, Delta: sum.Share{Total: 3}, ReportIDs: []messages.ReportID{{1}}},
		{Bucket: b2, Delta: sum.Share{Total: 4}, ReportIDs: []messages.ReportID{{2}}},
	})
	require.NoError(t, err)

	total, err := aggstore.GetAggShare(ctx, store, taskID, []messages.DapBatchBucket{b1, b2})
	require.NoError(t, err)
	require.Equal(t, sum.Share{Total: 7}, total)
}

func TestGetAggShareDetectsOverlap(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	taskID := messages.TaskID{1}
	b := messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: 0}

	_, err := aggstore.TryPutAggShareSpan(ctx, store, taskID, []storage.BucketDelta{
		{Bucket: b, Delta: sum.Share{Total: 3}, ReportIDs: []messages.ReportID{{1}}},
	})
	require.NoError(t, err)
	require.NoError(t, aggstore.MarkCollected(ctx, store, taskID, []messages.DapBatchBucket{b}))

	_, err = aggstore.GetAggShare(ctx, store, taskID, []messages.DapBatchBucket{b})
	require.ErrorIs(t, err, aggstore.ErrBatchOverlap)
}

func TestIsBatchOverlapping(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	taskID := messages.TaskID{1}
	b := messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: 0}

	overlapping, err := aggstore.IsBatchOverlapping(ctx, store, taskID, []messages.DapBatchBucket{b})
	require.NoError(t, err)
	require.False(t, overlapping)

	_, err = aggstore.TryPutAggShareSpan(ctx, store, taskID, []storage.BucketDelta{
		{Bucket: b, Delta: sum.Share{Total: 1}, ReportIDs: []messages.ReportID{{1}}},
	})
	require.NoError(t, err)
	require.NoError(t, aggstore.MarkCollected(ctx, store, taskID, []messages.DapBatchBucket{b}))

	overlapping, err = aggstore.IsBatchOverlapping(ctx, store, taskID, []messages.DapBatchBucket{b})
	require.NoError(t, err)
	require.True(t, overlapping)
}
