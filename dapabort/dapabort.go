// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dapabort defines the protocol-abort taxonomy (§7.1): errors that
// are recoverable by the calling peer and are surfaced over HTTP with a DAP
// problem-type URI, as distinct from per-report TransitionFailure (carried
// as message data, not a Go error) and from fatal internal errors (wrapped
// with github.com/cockroachdb/errors and never shown to the peer verbatim).
package dapabort

import (
	"fmt"
	"net/http"
)

// Code identifies a DapAbort kind.
type Code string

const (
	UnrecognizedTask          Code = "unrecognizedTask"
	UnrecognizedAggregationJob Code = "unrecognizedAggregationJob"
	UnrecognizedMessage       Code = "unrecognizedMessage"
	MissingTaskID             Code = "missingTaskId"
	BadRequest                Code = "badRequest"
	BatchOverlap              Code = "batchOverlap"
	BatchMismatch             Code = "batchMismatch"
	InvalidBatchSize          Code = "invalidBatchSize"
	ReportRejected            Code = "reportRejected"
	UnauthorizedRequest       Code = "unauthorizedRequest"
	RoundMismatch             Code = "roundMismatch"
)

// httpStatus maps each abort code to the HTTP status the transport layer
// should return.
var httpStatus = map[Code]int{
	UnrecognizedTask:           http.StatusBadRequest,
	UnrecognizedAggregationJob: http.StatusBadRequest,
	UnrecognizedMessage:        http.StatusBadRequest,
	MissingTaskID:              http.StatusBadRequest,
	BadRequest:                 http.StatusBadRequest,
	BatchOverlap:               http.StatusConflict,
	BatchMismatch:              http.StatusBadRequest,
	InvalidBatchSize:           http.StatusBadRequest,
	ReportRejected:             http.StatusBadRequest,
	UnauthorizedRequest:        http.StatusUnauthorized,
	RoundMismatch:              http.StatusBadRequest,
}

// problemBase is the URI prefix DAP problem-type documents use; each Code
// is appended as the final path segment.
const problemBase = "urn:ietf:params:dap:error:"

// Error is a recoverable protocol abort. It is not a per-report failure:
// raising one aborts the whole aggregation job or request.
type Error struct {
	Code    Code
	Detail  string
	TaskID  []byte // nil unless the abort is scoped to a known task
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Detail
}

// HTTPStatus returns the status code the transport layer should return for e.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ProblemType returns the DAP problem-type URI identifying e's Code.
func (e *Error) ProblemType() string {
	return problemBase + string(e.Code)
}

// New constructs an Error with the given code and detail message.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Newf is New with a formatted detail message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// WithTask returns a copy of e scoped to taskID.
func (e *Error) WithTask(taskID []byte) *Error {
	cp := *e
	cp.TaskID = taskID
	return &cp
}
