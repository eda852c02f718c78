// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	RequestCounter      = "artifact_requests_total"
	TokenRefreshCounter = "artifact_token_refreshes_total"
	DownloadedBytes     = "artifact_downloaded_bytes_total"
)

// Labels
const (
	OperationLabel = "operation"
	OutcomeLabel   = "outcome"
)

// Label Values
const (
	ListOperation       = "list"
	SignOperation       = "sign"
	DownloadOperation   = "download"
	SuccessOutcome      = "success"
	FailureOutcome      = "failure"
	UnauthorizedOutcome = "unauthorized"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: RequestCounter,
				Help: "Counter for the build API requests (and their outcomes) made while fetching presubmit artifacts.",
			},
			OperationLabel, OutcomeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: TokenRefreshCounter,
				Help: "Counter for the credential exchanges run to refresh the build API token.",
			},
			OutcomeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: DownloadedBytes,
				Help: "Number of artifact bytes written to the download directory.",
			},
		),
	)
}

type Measures struct {
	fx.In
	Requests       *prometheus.CounterVec `name:"artifact_requests_total"`
	TokenRefreshes *prometheus.CounterVec `name:"artifact_token_refreshes_total"`
	Bytes          *prometheus.CounterVec `name:"artifact_downloaded_bytes_total"`
}

func (m *Measures) request(operation, outcome string) {
	if m == nil || m.Requests == nil {
		return
	}
	m.Requests.With(prometheus.Labels{OperationLabel: operation, OutcomeLabel: outcome}).Inc()
}

func (m *Measures) refresh(outcome string) {
	if m == nil || m.TokenRefreshes == nil {
		return
	}
	m.TokenRefreshes.With(prometheus.Labels{OutcomeLabel: outcome}).Inc()
}

func (m *Measures) bytes(n int64) {
	if m == nil || m.Bytes == nil {
		return
	}
	m.Bytes.WithLabelValues().Add(float64(n))
}
