// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"log"
	"time"

	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/transport"
	"github.com/luxfi/dap-aggregator/workengine"
)

// runWorkQueue drains deps.Engine's global work queue until ctx is
// cancelled, driving each WorkItem through the Leader's aggregation or
// collection logic (spec §4.7 "pool of worker tasks"). A failed item is
// pushed back onto the queue rather than dropped.
func runWorkQueue(ctx context.Context, deps *transport.Deps, cfg config.TaskConfig, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, item := range deps.Engine.DequeueWork(16) {
				runWorkItem(ctx, deps, cfg, item)
			}
		}
	}
}

func runWorkItem(ctx context.Context, deps *transport.Deps, cfg config.TaskConfig, item workengine.WorkItem) {
	switch item.Kind {
	case workengine.WorkAggregationJob:
		if _, err := deps.Leader.RunAggregationJob(ctx, cfg, deps.Now(), item.PartBatchSel, item.AggJobID, item.AggParam, item.Reports); err != nil {
			log.Printf("dap-aggd: aggregation job %s failed, requeuing: %v", item.AggJobID.String(), err)
			deps.Engine.RequeueWork([]workengine.WorkItem{item})
		}

	case workengine.WorkCollectionJob:
		collection, err := deps.Leader.RunCollectionJob(ctx, cfg, item.BatchSel, item.AggParam)
		if err != nil {
			log.Printf("dap-aggd: collection job %s failed, requeuing: %v", item.CollJobID.String(), err)
			deps.Engine.RequeueWork([]workengine.WorkItem{item})
			return
		}
		if err := deps.Engine.FinishCollectJob(item.TaskID, item.CollJobID, collection); err != nil {
			log.Printf("dap-aggd: finishing collection job %s: %v", item.CollJobID.String(), err)
		}
	}
}
