// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dapabort

import "github.com/cockroachdb/errors"

// Fatal wraps an internal invariant violation or unretryable storage error
// with a stack trace (via cockroachdb/errors) for logging. It must never be
// rendered to a peer — the transport layer logs it at Error level and
// returns an opaque 500 instead of err.Error().
func Fatal(msg string, cause error) error {
	return errors.Wrap(cause, msg)
}

// Fatalf is Fatal with a formatted message.
func Fatalf(cause error, format string, args ...any) error {
	return errors.Wrapf(cause, format, args...)
}

// IsFatal reports whether err is a non-nil error that is not a *Error
// protocol abort. Any such error counts, whether or not it was produced by
// Fatal/Fatalf.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var abortErr *Error
	return !errors.As(err, &abortErr)
}
