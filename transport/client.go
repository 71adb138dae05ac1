// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/luxfi/dap-aggregator/dapabort"
	"github.com/luxfi/dap-aggregator/messages"
)

// HTTPHelperClient implements driver.HelperClient over HTTP, for a Leader
// reaching a Helper that is not in the same process. The internal
// Leader<->Helper leg wraps each binary messages.Encode() payload in a
// wrapperspb.BytesValue (spec DOMAIN STACK: protobuf on the internal leg,
// independent of the JSON problem-details surface collectors see) so the
// two aggregators can evolve their envelope (adding fields, compression
// hints) without perturbing the external wire format collectors depend on.
type HTTPHelperClient struct {
	BaseURL    string
	HTTPClient *http.Client
	BearerAuth string
}

// NewHTTPHelperClient builds a client against a Helper listening at
// baseURL (no trailing slash), authenticating with bearerAuth.
func NewHTTPHelperClient(baseURL, bearerAuth string) *HTTPHelperClient {
	return &HTTPHelperClient{
		BaseURL:    baseURL,
		HTTPClient: http.DefaultClient,
		BearerAuth: bearerAuth,
	}
}

func (c *HTTPHelperClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	envelope := &wrapperspb.BytesValue{Value: payload}
	body, err := proto.Marshal(envelope)
	if err != nil {
		return nil, dapabort.Fatal("failed to marshal internal aggregation-job envelope", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, dapabort.Fatal("failed to build helper request", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Authorization", "Bearer "+c.BearerAuth)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, dapabort.New(dapabort.BadRequest, "helper unreachable: "+err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dapabort.Fatal("failed to read helper response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, translateHelperError(resp.StatusCode, respBody)
	}

	var respEnvelope wrapperspb.BytesValue
	if err := proto.Unmarshal(respBody, &respEnvelope); err != nil {
		return nil, dapabort.Fatal("failed to unmarshal internal aggregation-job envelope", err)
	}
	return respEnvelope.Value, nil
}

// translateHelperError turns a non-200 problem-details body from the
// Helper back into the same *dapabort.Error the Leader would have raised
// locally, so RunAggregationJob's abort handling doesn't care whether the
// Helper ran in-process or over the wire.
func translateHelperError(status int, body []byte) error {
	var doc problemDocument
	if err := json.Unmarshal(body, &doc); err != nil || doc.Type == "" {
		return dapabort.New(dapabort.BadRequest, fmt.Sprintf("helper returned unexpected status %d", status))
	}
	return dapabort.New(dapabort.Code(doc.Title), doc.Detail)
}

func (c *HTTPHelperClient) AggregationJobInit(ctx context.Context, req messages.AggregationJobInitReq) (messages.AggregationJobResp, error) {
	path := fmt.Sprintf("/tasks/%s/aggregation_jobs/%s", req.TaskID.String(), req.AggJobID.String())
	respBytes, err := c.do(ctx, http.MethodPut, path, req.Encode())
	if err != nil {
		return messages.AggregationJobResp{}, err
	}
	resp, err := messages.DecodeAggregationJobResp(respBytes)
	if err != nil {
		return messages.AggregationJobResp{}, dapabort.Fatal("failed to decode helper init response", err)
	}
	return resp, nil
}

func (c *HTTPHelperClient) AggregationJobContinue(ctx context.Context, req messages.AggregationJobContinueReq) (messages.AggregationJobResp, error) {
	path := fmt.Sprintf("/tasks/%s/aggregation_jobs/%s", req.TaskID.String(), req.AggJobID.String())
	respBytes, err := c.do(ctx, http.MethodPost, path, req.Encode())
	if err != nil {
		return messages.AggregationJobResp{}, err
	}
	resp, err := messages.DecodeAggregationJobResp(respBytes)
	if err != nil {
		return messages.AggregationJobResp{}, dapabort.Fatal("failed to decode helper continue response", err)
	}
	return resp, nil
}

func (c *HTTPHelperClient) AggregateShare(ctx context.Context, req messages.AggregateShareReq) (messages.AggregateShareResp, error) {
	path := fmt.Sprintf("/tasks/%s/aggregate_shares", req.TaskID.String())
	respBytes, err := c.do(ctx, http.MethodPost, path, req.Encode())
	if err != nil {
		return messages.AggregateShareResp{}, err
	}
	resp, err := messages.DecodeAggregateShareResp(respBytes)
	if err != nil {
		return messages.AggregateShareResp{}, dapabort.Fatal("failed to decode helper aggregate-share response", err)
	}
	return resp, nil
}
