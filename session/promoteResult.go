// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"net/http"

	"github.com/xmidt-org/aurum/model"
)

// Per golden promote statuses.
const (
	UpdatedStatus  = "Updated"
	NotFoundStatus = "Not found"
	failedStatus   = "Failed with exception: "
)

// PromoteResult summarizes a batch promote.
type PromoteResult int64

const (
	UnknownPromoteResult PromoteResult = iota
	AllPromoteResult
	PartialPromoteResult
	NonePromoteResult
)

func (p PromoteResult) String() string {
	switch p {
	case AllPromoteResult:
		return "all"
	case PartialPromoteResult:
		return "partial"
	case NonePromoteResult:
		return "none"
	}
	return "unknown"
}

// StatusCode is the HTTP status reporting the result.
func (p PromoteResult) StatusCode() int {
	switch p {
	case AllPromoteResult:
		return http.StatusOK
	case PartialPromoteResult:
		return http.StatusMultiStatus
	}
	return http.StatusBadRequest
}

// Promotion is the outcome of a promote call.
type Promotion struct {
	Result PromoteResult
	Report model.PromoteReport
}

func promoteResult(succeeded, requested int) PromoteResult {
	switch {
	case succeeded == requested:
		return AllPromoteResult
	case succeeded == 0:
		return NonePromoteResult
	}
	return PartialPromoteResult
}
