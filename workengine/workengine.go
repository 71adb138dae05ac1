// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package workengine implements the Leader's per-task work engine (spec
// §4.7): the pending-report queue keyed by bucket, the collection-job
// lifecycle, the fixed-size batch queue, and the global FIFO of work
// items a pool of aggregation workers drains.
package workengine

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/dapabort"
	"github.com/luxfi/dap-aggregator/messages"
	"github.com/luxfi/dap-aggregator/metrics"
)

// errInvariant marks a finish_collect_job call that found the job in a
// state other than Pending — a programming error in the caller, not a
// condition a peer can trigger or retry past.
var errInvariant = errors.New("workengine: collection job was not in Pending")

// CollectionStatus is a CollectionJob's lifecycle state (spec §3
// "CollectionJob"): Unknown -> Pending -> Done, no other transition legal.
type CollectionStatus uint8

const (
	CollectionUnknown CollectionStatus = iota
	CollectionPending
	CollectionDone
)

// CollectionJob is one collector-initiated aggregation request.
type CollectionJob struct {
	Status     CollectionStatus
	BatchSel   messages.BatchSelector
	AggParam   []byte
	Collection messages.CollectResp // set iff Status == CollectionDone
}

// WorkItemKind discriminates the WorkItem tagged union (spec §3 "WorkItem").
type WorkItemKind uint8

const (
	WorkAggregationJob WorkItemKind = iota
	WorkCollectionJob
)

// WorkItem is one unit of work a worker pulls from the engine's global
// queue: either a batch of reports ready to drive through an aggregation
// job, or a collection job ready to assemble its final Collection once its
// constituent aggregation jobs have all committed.
type WorkItem struct {
	Kind WorkItemKind
	TaskID messages.TaskID

	// Set iff Kind == WorkAggregationJob.
	AggJobID     messages.AggregationJobID
	PartBatchSel messages.PartialBatchSelector
	AggParam     []byte
	Reports      []messages.Report

	// Set iff Kind == WorkCollectionJob.
	CollJobID messages.CollectionJobID
	BatchSel  messages.BatchSelector
}

type fixedBatch struct {
	id   messages.BatchID
	size uint64
}

// taskState is one task's pending-report and batch bookkeeping, serialized
// by its own mutex so unrelated tasks never contend.
type taskState struct {
	mu             sync.Mutex
	cfg            config.TaskConfig
	pendingReports map[messages.DapBatchBucket][]messages.Report
	collJobs       map[messages.CollectionJobID]*CollectionJob
	batchQueue     []fixedBatch // FIFO, oldest first
}

// Engine is the Leader's work engine: one taskState per registered task,
// plus the single global work_queue every task's ready items feed into.
type Engine struct {
	mu        sync.Mutex
	tasks     map[messages.TaskID]*taskState
	workQueue []WorkItem

	// Metrics is optional; a nil Metrics disables instrumentation.
	Metrics *metrics.DAPMetrics
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{tasks: make(map[messages.TaskID]*taskState)}
}

func (e *Engine) observeQueueDepth() {
	if e.Metrics == nil {
		return
	}
	e.Metrics.WorkQueueDepth.Set(float64(len(e.workQueue)))
}

// RegisterTask makes the engine aware of a task's configuration, required
// before PutReport/InitCollectJob will accept work for it.
func (e *Engine) RegisterTask(cfg config.TaskConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[cfg.TaskID]; ok {
		return
	}
	e.tasks[cfg.TaskID] = &taskState{
		cfg:            cfg,
		pendingReports: make(map[messages.DapBatchBucket][]messages.Report),
		collJobs:       make(map[messages.CollectionJobID]*CollectionJob),
	}
}

func (e *Engine) task(taskID messages.TaskID) (*taskState, error) {
	e.mu.Lock()
	ts, ok := e.tasks[taskID]
	e.mu.Unlock()
	if !ok {
		return nil, dapabort.New(dapabort.UnrecognizedTask, "task not registered").WithTask(taskID[:])
	}
	return ts, nil
}

func randomID32() [32]byte {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return b
}

// bucketFor assigns report to its DapBatchBucket the way report-init does
// for time-interval tasks; for fixed-size tasks it consults (and may
// extend) the task's batch queue, since that assignment is the engine's
// responsibility, not report-init's (spec §4.3 final sentence).
func (ts *taskState) bucketFor(reportTime messages.Time) messages.DapBatchBucket {
	if ts.cfg.QueryType == config.QueryFixedSize {
		for i := range ts.batchQueue {
			if ts.batchQueue[i].size < ts.cfg.MinBatchSize {
				ts.batchQueue[i].size++
				return messages.DapBatchBucket{Kind: messages.BatchFixedSize, BatchID: ts.batchQueue[i].id}
			}
		}
		id := messages.BatchID(randomID32())
		ts.batchQueue = append(ts.batchQueue, fixedBatch{id: id, size: 1})
		return messages.DapBatchBucket{Kind: messages.BatchFixedSize, BatchID: id}
	}
	return messages.DapBatchBucket{Kind: messages.BatchTimeInterval, BatchWindow: ts.cfg.BatchWindow(reportTime)}
}

// PutReport assigns report to its bucket and appends it to that bucket's
// pending queue (spec §4.7 "put_report").
func (e *Engine) PutReport(report messages.Report) error {
	ts, err := e.task(report.TaskID)
	if err != nil {
		return err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	bucket := ts.bucketFor(report.Metadata.Time)
	ts.pendingReports[bucket] = append(ts.pendingReports[bucket], report)
	return nil
}

func partialSelectorFor(bucket messages.DapBatchBucket) messages.PartialBatchSelector {
	if bucket.Kind == messages.BatchFixedSize {
		return messages.PartialBatchSelector{Kind: messages.BatchFixedSize, BatchID: bucket.BatchID}
	}
	return messages.PartialBatchSelector{Kind: messages.BatchTimeInterval}
}

// InitCollectJob starts a collection job over batchSel (spec §4.7
// "init_collect_job"): drains every spanned bucket's pending reports into
// an AggregationJob work item, removes any collected fixed-size batches
// from the queue, and finally enqueues the CollectionJob item itself so it
// runs after its constituent aggregation jobs.
func (e *Engine) InitCollectJob(taskID messages.TaskID, collJobID messages.CollectionJobID, batchSel messages.BatchSelector, aggParam []byte) error {
	ts, err := e.task(taskID)
	if err != nil {
		return err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, exists := ts.collJobs[collJobID]; exists {
		return dapabort.New(dapabort.BadRequest, "collection job id already in use").WithTask(taskID[:])
	}
	ts.collJobs[collJobID] = &CollectionJob{Status: CollectionPending, BatchSel: batchSel, AggParam: aggParam}

	var items []WorkItem
	for _, bucket := range ts.cfg.BucketsForSelector(batchSel) {
		reports := ts.pendingReports[bucket]
		delete(ts.pendingReports, bucket)
		if len(reports) == 0 {
			continue
		}
		items = append(items, WorkItem{
			Kind:         WorkAggregationJob,
			TaskID:       taskID,
			AggJobID:     messages.AggregationJobID(randomID32()),
			PartBatchSel: partialSelectorFor(bucket),
			AggParam:     aggParam,
			Reports:      reports,
		})
		if bucket.Kind == messages.BatchFixedSize {
			for i, b := range ts.batchQueue {
				if b.id == bucket.BatchID {
					ts.batchQueue = append(ts.batchQueue[:i], ts.batchQueue[i+1:]...)
					break
				}
			}
		}
	}
	items = append(items, WorkItem{Kind: WorkCollectionJob, TaskID: taskID, CollJobID: collJobID, BatchSel: batchSel, AggParam: aggParam})

	e.mu.Lock()
	e.workQueue = append(e.workQueue, items...)
	e.observeQueueDepth()
	e.mu.Unlock()
	return nil
}

// DequeueWork pops up to n items from the head of the global work queue.
func (e *Engine) DequeueWork(n int) []WorkItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > len(e.workQueue) {
		n = len(e.workQueue)
	}
	items := e.workQueue[:n]
	e.workQueue = e.workQueue[n:]
	out := make([]WorkItem, n)
	copy(out, items)
	e.observeQueueDepth()
	return out
}

// RequeueWork pushes items back onto the queue after a failed attempt
// (spec §4.7 "on failure, items are re-enqueued"). They go to the back so
// one perpetually failing item cannot starve the rest of the queue.
func (e *Engine) RequeueWork(items []WorkItem) {
	if len(items) == 0 {
		return
	}
	e.mu.Lock()
	e.workQueue = append(e.workQueue, items...)
	e.observeQueueDepth()
	e.mu.Unlock()
}

// CurrentBatch returns the front of taskID's fixed-size batch queue (spec
// §4.7 "current_batch"); it is a BadRequest to call this for a
// time-interval task or an empty queue.
func (e *Engine) CurrentBatch(taskID messages.TaskID) (messages.BatchID, uint64, error) {
	ts, err := e.task(taskID)
	if err != nil {
		return messages.BatchID{}, 0, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.cfg.QueryType != config.QueryFixedSize {
		return messages.BatchID{}, 0, dapabort.New(dapabort.BadRequest, "current_batch is only valid for fixed-size tasks").WithTask(taskID[:])
	}
	if len(ts.batchQueue) == 0 {
		return messages.BatchID{}, 0, dapabort.New(dapabort.BadRequest, "batch queue is empty").WithTask(taskID[:])
	}
	front := ts.batchQueue[0]
	return front.id, front.size, nil
}

// FinishCollectJob transitions collJobID from Pending to Done, recording
// collection as its result (spec §4.7 "finish_collect_job"). Finding the
// job in any state other than Pending is a fatal invariant violation, not
// a recoverable abort: the caller's own bookkeeping guaranteed Pending by
// construction.
func (e *Engine) FinishCollectJob(taskID messages.TaskID, collJobID messages.CollectionJobID, collection messages.CollectResp) error {
	ts, err := e.task(taskID)
	if err != nil {
		return err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	job, ok := ts.collJobs[collJobID]
	if !ok || job.Status != CollectionPending {
		return dapabort.Fatal("finish_collect_job called on a job not in Pending", errInvariant)
	}
	job.Status = CollectionDone
	job.Collection = collection
	if e.Metrics != nil {
		e.Metrics.CollectionJobsTotal.Inc()
	}
	return nil
}

// CollectionJobStatus returns the current state of a collection job, for
// the poll endpoint (spec §6 "POST .../collection_jobs/{id}").
func (e *Engine) CollectionJobStatus(taskID messages.TaskID, collJobID messages.CollectionJobID) (CollectionJob, bool, error) {
	ts, err := e.task(taskID)
	if err != nil {
		return CollectionJob{}, false, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	job, ok := ts.collJobs[collJobID]
	if !ok {
		return CollectionJob{}, false, nil
	}
	return *job, true, nil
}
