// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xmidt-org/aurum/golden"
)

var (
	ErrInvocationIDEmpty  = errors.New("invocation ID is required")
	ErrDownloadDirEmpty   = errors.New("download directory is required")
	ErrCredentialsMissing = errors.New("credentials are required")
	ErrSignedURLEmpty     = errors.New("build API returned an empty signed download url")
	ErrTokenNotFound      = errors.New("could not extract a token from the credential exchange output")
	ErrUnknownTestName    = errors.New("no artifacts are listed for this test name")
)

var (
	errNonSuccessResponse = errors.New("build API responded with a non-success status code")
	errNewRequestFailure  = errors.New("failed creating an HTTP request")
	errDoRequestFailure   = errors.New("http client failed while sending request")
	errReadingBodyFailure = errors.New("failed while reading http response body")
	errAuthAcquireFailure = errors.New("failed acquiring auth token")
)

const (
	errWrappedFmt    = "%w: %s"
	errStatusCodeFmt = "%v: received status %v"
)

// StatusError is returned when the build API answers with a non-success
// status code.  Code is the upstream status.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(errStatusCodeFmt, e.Err, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

// translateNonSuccessStatusCode returns a specific error
// for known build API status codes.
func translateNonSuccessStatusCode(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return golden.ErrAuthExpired
	case code == http.StatusForbidden:
		return golden.ErrPermissionDenied
	case code == http.StatusNotFound:
		return golden.ErrNotFound
	case code >= http.StatusInternalServerError:
		return golden.ErrBackendUnavailable
	default:
		return errNonSuccessResponse
	}
}
