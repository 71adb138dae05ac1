// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auth implements the task-scoped Bearer-token authorizer spec §6
// describes: every aggregator-to-aggregator and collector-to-Leader call
// carries a Bearer token, and the correct token to check against depends
// on whether the task was provisioned out-of-band or via taskprov.
package auth

import (
	"errors"
	"strings"

	"github.com/luxfi/dap-aggregator/dapabort"
	"github.com/luxfi/dap-aggregator/internal/bhex"
	"github.com/luxfi/dap-aggregator/messages"
)

// ErrNoToken is returned by TokenFor when a task has neither an explicit
// nor a taskprov-derived token registered.
var ErrNoToken = errors.New("auth: no token registered for task")

// TaskToken is one task's collector-facing and aggregator-facing
// credentials. A taskprov-provisioned task is marked by IsTaskprov; its
// token is supplied to RegisterTask like any other and is not derived
// from a taskprov advertisement here (see the taskprov token derivation
// entry in DESIGN.md).
type TaskToken struct {
	Token      []byte
	IsTaskprov bool
}

// Authorizer validates Bearer tokens on incoming requests, per task.
type Authorizer struct {
	tokens map[messages.TaskID]TaskToken
	// defaultToken is used for any task not present in tokens, when
	// requireRegistered is false.
	defaultToken      []byte
	requireRegistered bool
}

// New returns an Authorizer with no registered tasks. If
// requireRegistered is true, a request for an unregistered task id is
// always rejected rather than falling back to defaultToken.
func New(defaultToken []byte, requireRegistered bool) *Authorizer {
	return &Authorizer{
		tokens:            make(map[messages.TaskID]TaskToken),
		defaultToken:      defaultToken,
		requireRegistered: requireRegistered,
	}
}

// RegisterTask records the Bearer token expected for taskID. isTaskprov
// marks a taskprov-provisioned task so it is never confused with a
// statically-configured one in logs or metrics.
func (a *Authorizer) RegisterTask(taskID messages.TaskID, token []byte, isTaskprov bool) {
	a.tokens[taskID] = TaskToken{Token: token, IsTaskprov: isTaskprov}
}

// TokenFor returns the token a valid request for taskID must present.
func (a *Authorizer) TokenFor(taskID messages.TaskID) ([]byte, error) {
	if tok, ok := a.tokens[taskID]; ok {
		return tok.Token, nil
	}
	if a.requireRegistered {
		return nil, ErrNoToken
	}
	if a.defaultToken == nil {
		return nil, ErrNoToken
	}
	return a.defaultToken, nil
}

// bearerPrefix is the HTTP Authorization header scheme this protocol uses.
const bearerPrefix = "Bearer "

// ParseBearer extracts the token from an Authorization header value,
// rejecting anything not in "Bearer <token>" form.
func ParseBearer(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimPrefix(header, bearerPrefix)
	if tok == "" {
		return "", false
	}
	return tok, true
}

// Authorize validates authHeader (an Authorization header value) against
// taskID's expected token, in constant time. It returns a DapAbort
// UnauthorizedRequest on any mismatch, matching spec §7's "Bearer token"
// authentication contract without leaking which part of the check failed.
func (a *Authorizer) Authorize(taskID messages.TaskID, authHeader string) error {
	want, err := a.TokenFor(taskID)
	if err != nil {
		return dapabort.New(dapabort.UnauthorizedRequest, "no token registered for task").WithTask(taskID[:])
	}
	got, ok := ParseBearer(authHeader)
	if !ok {
		return dapabort.New(dapabort.UnauthorizedRequest, "missing or malformed Authorization header").WithTask(taskID[:])
	}
	if !bhex.ConstantTimeEqual(want, []byte(got)) {
		return dapabort.New(dapabort.UnauthorizedRequest, "bearer token mismatch").WithTask(taskID[:])
	}
	return nil
}
