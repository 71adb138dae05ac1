// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport implements the seven spec §6 HTTP endpoints as a thin
// collaborator over the rest of the engine: request/response envelope
// types, a net/http.ServeMux-style route table, and the wire client the
// Leader uses to reach a Helper aggregator. It owns no protocol logic of
// its own — every handler is a few lines of decode/dispatch/encode around
// driver, workengine, aggstore and auth.
package transport

// Media types identify each endpoint's binary wire body, the way the
// protocol's own media-type table does (spec §6). A mismatched or missing
// Content-Type does not by itself reject a request here — the body is
// still decoded and validated on its own terms — but handlers set it on
// every response that carries a body so a byte-exact peer implementation
// can tell requests and responses apart on the wire. Bodyless 200, 201
// and 202 responses carry no Content-Type.
const (
	MediaTypeReport                     = "application/dap-report"
	MediaTypeAggregationJobInitReq      = "application/dap-aggregation-job-init-req"
	MediaTypeAggregationJobContinueReq  = "application/dap-aggregation-job-continue-req"
	MediaTypeAggregationJobResp         = "application/dap-aggregation-job-resp"
	MediaTypeCollectReq                 = "application/dap-collect-req"
	MediaTypeCollectResp                = "application/dap-collection"
	MediaTypeAggregateShareReq          = "application/dap-aggregate-share-req"
	MediaTypeAggregateShareResp         = "application/dap-aggregate-share"
	MediaTypeHpkeConfig                 = "application/dap-hpke-config"
	MediaTypeProblemDetails             = "application/problem+json"
)
