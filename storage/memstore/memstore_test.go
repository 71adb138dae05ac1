package memstore

import (
	"context"
	"testing"

	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/storage"
	"github.com/luxfi/dap-aggregator/vdaf/sum"
	"github.com/stretchr/testify/require"
)

func bucket(window uint64) messages.DapBatchBucket {
	return messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: messages.Time(window)}
}

func TestPutIfNotExists(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.PutIfNotExists(ctx, []byte("k"), []byte("v1"))
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.PutIfNotExists(ctx, []byte("k"), []byte("v2"))
	require.NoError(t, err)
	require.False(t, created)

	v, ok, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)
}

func TestCheckAndSetProcessedDetectsReplay(t *testing.T) {
	s := New()
	ctx := context.Background()
	taskID := messages.TaskID{1}
	r1 := messages.ReportID{1}
	r2 := messages.ReportID{2}

	already, err := s.CheckAndSetProcessed(ctx, taskID, []messages.ReportID{r1, r2})
	require.NoError(t, err)
	require.Empty(t, already)

	already, err = s.CheckAndSetProcessed(ctx, taskID, []messages.ReportID{r1})
	require.NoError(t, err)
	require.True(t, already[r1])
}

func TestHelperStateIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	taskID := messages.TaskID{1}
	jobID := messages.AggregationJobID{1}

	created, err := s.PutHelperStateIfNotExists(ctx, taskID, jobID, []byte("state-1"))
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.PutHelperStateIfNotExists(ctx, taskID, jobID, []byte("state-2"))
	require.NoError(t, err)
	require.False(t, created)

	v, ok, err := s.GetHelperState(ctx, taskID, jobID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("state-1"), v)
}

func TestAggStoreAtomicMergeAndCollect(t *testing.T) {
	s := New()
	ctx := context.Background()
	taskID := messages.TaskID{1}
	b := bucket(3600)
	r1 := messages.ReportID{1}
	r2 := messages.ReportID{2}

	results, err := s.AggStoreAtomicMerge(ctx, taskID, []storage.BucketDelta{
		{Bucket: b, Delta: sum.Share{Total: 5}, ReportIDs: []messages.ReportID{r1}},
	})
	require.NoError(t, err)
	require.Equal(t, storage.MergeOK, results[b].Outcome)

	results, err = s.AggStoreAtomicMerge(ctx, taskID, []storage.BucketDelta{
		{Bucket: b, Delta: sum.Share{Total: 7}, ReportIDs: []messages.ReportID{r2}},
	})
	require.NoError(t, err)
	require.Equal(t, storage.MergeOK, results[b].Outcome)

	entry, ok, err := s.AggStoreGet(ctx, taskID, b)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sum.Share{Total: 12}, entry.Share)

	require.NoError(t, s.AggStoreMarkCollected(ctx, taskID, []messages.DapBatchBucket{b}))

	results, err = s.AggStoreAtomicMerge(ctx, taskID, []storage.BucketDelta{
		{Bucket: b, Delta: sum.Share{Total: 1}, ReportIDs: []messages.ReportID{{9}}},
	})
	require.NoError(t, err)
	require.Equal(t, storage.MergeAlreadyCollected, results[b].Outcome)
}

func TestAggStoreAtomicMergeRejectsReplay(t *testing.T) {
	s := New()
	ctx := context.Background()
	taskID := messages.TaskID{1}
	b := bucket(3600)
	r1 := messages.ReportID{1}

	_, err := s.AggStoreAtomicMerge(ctx, taskID, []storage.BucketDelta{
		{Bucket: b, Delta: sum.Share{Total: 5}, ReportIDs: []messages.ReportID{r1}},
	})
	require.NoError(t, err)

	results, err := s.AggStoreAtomicMerge(ctx, taskID, []storage.BucketDelta{
		{Bucket: b, Delta: sum.Share{Total: 5}, ReportIDs: []messages.ReportID{r1}},
	})
	require.NoError(t, err)
	require.Equal(t, storage.MergeReplaysDetected, results[b].Outcome)
	require.Equal(t, []messages.ReportID{r1}, results[b].ReplayIDs)

	entry, ok, err := s.AggStoreGet(ctx, taskID, b)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sum.Share{Total: 5}, entry.Share, "replayed delta must not be merged")
}
