// Copyright (C) 2020-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api holds the small handful of non-protocol HTTP helpers shared
// outside the DAP wire surface itself (transport owns that; see
// transport/problem.go for the RFC 7807 responder every §6 endpoint uses).
package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as a JSON response with status, for the process's
// operational endpoints (health, etc.) that aren't part of the DAP wire
// protocol and so don't go through transport's problem-details responder.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}