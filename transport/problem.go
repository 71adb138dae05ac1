// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/luxfi/dap-aggregator/dapabort"
	"github.com/luxfi/dap-aggregator/internal/bhex"
	"github.com/luxfi/log"
)

// problemDocument is an RFC 7807 problem-details body, the document shape
// every DAP implementation uses to surface a DapAbort (spec §7.1). JSON is
// the IETF-mandated encoding for this document; nothing in the domain
// stack supplies a problem-details helper, so encoding/json is used
// directly here (see DESIGN.md).
type problemDocument struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	TaskID string `json:"taskid,omitempty"`
}

// writeError translates err into an HTTP response: a DapAbort becomes a
// problem-details document at its mapped status; anything else (including
// a dapabort.Fatal-wrapped internal error) becomes an opaque 500, logged
// with full detail but never echoed to the peer (spec §7 propagation
// policy).
func writeError(w http.ResponseWriter, logger log.Logger, err error) {
	var daErr *dapabort.Error
	if errors.As(err, &daErr) {
		doc := problemDocument{
			Type:   daErr.ProblemType(),
			Title:  string(daErr.Code),
			Status: daErr.HTTPStatus(),
			Detail: daErr.Detail,
		}
		if daErr.TaskID != nil {
			doc.TaskID = bhex.Encode(daErr.TaskID)
		}
		writeJSON(w, doc.Status, doc)
		return
	}

	logger.Error("internal error handling request", "error", err)
	writeJSON(w, http.StatusInternalServerError, problemDocument{
		Type:   "urn:ietf:params:dap:error:internal",
		Title:  "internal server error",
		Status: http.StatusInternalServerError,
	})
}

func writeJSON(w http.ResponseWriter, status int, doc any) {
	w.Header().Set("Content-Type", MediaTypeProblemDetails)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}
