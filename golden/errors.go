// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package golden

import "errors"

// Error categories shared by every component.  Callers wrap these with %w so
// the HTTP boundary can translate them with errors.Is.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrAuthExpired        = errors.New("authorization expired")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrNotFound           = errors.New("not found")
	ErrPartialFailure     = errors.New("partial failure")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNoActiveMode       = errors.New("no active mode")
)
