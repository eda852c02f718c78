/**
 * Copyright 2020 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"net/http"

	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	RequestCounter   = "server_request_count"
	InFlightRequests = "server_requests_in_flight"
)

// Labels
const (
	ServerLabel = "server"
	CodeLabel   = "code"
	MethodLabel = "method"
)

const primaryServer = "primary"

type MetricsIn struct {
	fx.In
	Requests *prometheus.CounterVec `name:"server_request_count"`
	InFlight *prometheus.GaugeVec   `name:"server_requests_in_flight"`
}

// provideMetrics builds the application metrics and makes them available to the container
func provideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: RequestCounter,
				Help: "total incoming HTTP requests",
			},
			CodeLabel,
			MethodLabel,
			ServerLabel,
		),
		touchstone.GaugeVec(
			prometheus.GaugeOpts{
				Name: InFlightRequests,
				Help: "tracks the current number of incoming requests being processed",
			},
			ServerLabel,
		),
		fx.Provide(
			fx.Annotated{
				Name:   "instrument_chain",
				Target: newInstrumentChain,
			},
		),
	)
}

// newInstrumentChain counts the requests of the primary server by code and
// method.
func newInstrumentChain(in MetricsIn) (alice.Chain, error) {
	requests, err := in.Requests.CurryWith(prometheus.Labels{ServerLabel: primaryServer})
	if err != nil {
		return alice.Chain{}, err
	}
	inFlight := in.InFlight.WithLabelValues(primaryServer)

	return alice.New(
		func(next http.Handler) http.Handler {
			return promhttp.InstrumentHandlerInFlight(inFlight, next)
		},
		func(next http.Handler) http.Handler {
			return promhttp.InstrumentHandlerCounter(requests, next)
		},
	), nil
}
