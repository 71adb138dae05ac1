// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dap-aggregator/dapabort"
	"github.com/luxfi/dap-aggregator/messages"
)

func TestAuthorizeRegisteredTaskHappyPath(t *testing.T) {
	a := New(nil, false)
	taskID := messages.TaskID{1}
	a.RegisterTask(taskID, []byte("secret-token"), false)

	require.NoError(t, a.Authorize(taskID, "Bearer secret-token"))
}

func TestAuthorizeRejectsWrongToken(t *testing.T) {
	a := New(nil, false)
	taskID := messages.TaskID{1}
	a.RegisterTask(taskID, []byte("secret-token"), false)

	err := a.Authorize(taskID, "Bearer wrong-token")
	require.Error(t, err)
	var daErr *dapabort.Error
	require.ErrorAs(t, err, &daErr)
	require.Equal(t, dapabort.UnauthorizedRequest, daErr.Code)
}

func TestAuthorizeRejectsMalformedHeader(t *testing.T) {
	a := New(nil, false)
	taskID := messages.TaskID{1}
	a.RegisterTask(taskID, []byte("secret-token"), false)

	require.Error(t, a.Authorize(taskID, "secret-token"))
	require.Error(t, a.Authorize(taskID, "Bearer "))
	require.Error(t, a.Authorize(taskID, ""))
}

func TestAuthorizeUnregisteredTaskFallsBackToDefault(t *testing.T) {
	a := New([]byte("default-token"), false)
	taskID := messages.TaskID{2}

	require.NoError(t, a.Authorize(taskID, "Bearer default-token"))
}

func TestAuthorizeUnregisteredTaskRejectedWhenRequired(t *testing.T) {
	a := New([]byte("default-token"), true)
	taskID := messages.TaskID{2}

	err := a.Authorize(taskID, "Bearer default-token")
	require.Error(t, err)
}

func TestAuthorizeTaskprovToken(t *testing.T) {
	a := New(nil, false)
	taskID := messages.TaskID{3}
	a.RegisterTask(taskID, []byte("taskprov-derived-token"), true)

	require.NoError(t, a.Authorize(taskID, "Bearer taskprov-derived-token"))
	require.Error(t, a.Authorize(taskID, "Bearer default-token"))
}
