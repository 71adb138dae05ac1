// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dap-aggregator/messages"
)

// TestHTTPHelperClientRoundTrip drives a Leader-side HTTPHelperClient
// against a real Routes(deps) server backed by an in-process Helper,
// checking the protobuf envelope round-trips the binary aggregation-job
// messages unchanged.
func TestHTTPHelperClientRoundTrip(t *testing.T) {
	td := newTestDeps(t)
	srv := httptest.NewServer(Routes(td.deps))
	defer srv.Close()

	client := NewHTTPHelperClient(srv.URL, testToken)

	md := messages.ReportMetadata{ID: messages.ReportID{3}, Time: messages.Time(10_000)}
	ct := sealInputShare(t, td.helperKP, td.cfg.TaskID, md, true, 9)
	aggJobID := messages.AggregationJobID{6}

	resp, err := client.AggregationJobInit(context.Background(), messages.AggregationJobInitReq{
		TaskID:       td.cfg.TaskID,
		AggJobID:     aggJobID,
		ReportShares: []messages.ReportShare{{Metadata: md, EncryptedInputShare: ct}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Transitions, 1)
	require.Equal(t, md.ID, resp.Transitions[0].ReportID)
}

func TestHTTPHelperClientPropagatesAbort(t *testing.T) {
	td := newTestDeps(t)
	srv := httptest.NewServer(Routes(td.deps))
	defer srv.Close()

	client := NewHTTPHelperClient(srv.URL, "wrong-token")

	_, err := client.AggregationJobInit(context.Background(), messages.AggregationJobInitReq{
		TaskID:   td.cfg.TaskID,
		AggJobID: messages.AggregationJobID{7},
	})
	require.Error(t, err)
}
