// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package driver

import (
	"context"

	"github.com/luxfi/dap-aggregator/config"
	"github.com/luxfi/dap-aggregator/messages"
)

// InProcessHelper adapts a *Helper to the HelperClient interface without a
// network hop, for driving both sides of a job in one process (tests,
// single-binary deployments where transport wiring isn't needed).
type InProcessHelper struct {
	Helper *Helper
	Config config.TaskConfig
	Now    messages.Time
}

var _ HelperClient = InProcessHelper{}

func (h InProcessHelper) AggregationJobInit(ctx context.Context, req messages.AggregationJobInitReq) (messages.AggregationJobResp, error) {
	return h.Helper.HandleInitReq(ctx, h.Config, h.Now, req.PartBatchSel, req)
}

func (h InProcessHelper) AggregationJobContinue(ctx context.Context, req messages.AggregationJobContinueReq) (messages.AggregationJobResp, error) {
	return h.Helper.HandleContinueReq(ctx, req)
}

func (h InProcessHelper) AggregateShare(ctx context.Context, req messages.AggregateShareReq) (messages.AggregateShareResp, error) {
	return h.Helper.HandleAggregateShareReq(ctx, h.Config, req)
}
