// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"net/http"
)

// ModeError is returned when a mode could not be made active.  The mode
// cache is left untouched.
type ModeError struct {
	Mode string
	Err  error
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("failed to activate mode %s: %v", e.Mode, e.Err)
}

func (e *ModeError) Unwrap() error {
	return e.Err
}

func (e *ModeError) StatusCode() int {
	return http.StatusServiceUnavailable
}
