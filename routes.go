// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xmidt-org/aurum/session"
	"github.com/xmidt-org/candlelight"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/fx"
)

// CORS headers sent with every response
const (
	allowOrigin    = "*"
	allowMethods   = "POST, PUT, GET, OPTIONS"
	allowHeaders   = "Golden-Access-Token, Content-Type, Content-Length, Range, Accept-ranges"
	optionsMethods = "GET,POST,PUT"
)

type PrimaryRouterIn struct {
	fx.In
	Open       alice.Chain `name:"open_chain"`
	Protected  alice.Chain `name:"protected_chain"`
	Instrument alice.Chain `name:"instrument_chain"`
	Gatherer   prometheus.Gatherer

	// Tracing will be used to set up tracing instrumentation code.
	Tracing  candlelight.Tracing
	Handlers PrimaryHandlersIn
}

type PrimaryHandlersIn struct {
	fx.In
	ListGoldens    session.Handler `name:"list_goldens_handler"`
	ListModes      session.Handler `name:"list_modes_handler"`
	State          session.Handler `name:"state_handler"`
	SelectMode     session.Handler `name:"select_mode_handler"`
	Refresh        session.Handler `name:"refresh_handler"`
	ListPresubmit  session.Handler `name:"list_presubmit_handler"`
	FetchArtifact  session.Handler `name:"fetch_artifact_handler"`
	Update         session.Handler `name:"update_handler"`
	UpdateSelected session.Handler `name:"update_selected_handler"`
	GoldenFile     session.Handler `name:"golden_file_handler"`
	ExpectedFile   session.Handler `name:"expected_file_handler"`
	Gerrit         session.Handler `name:"gerrit_handler"`
}

// BuildPrimaryRoutes assembles the web UI service.  The returned handler
// answers OPTIONS on its own and adds the CORS headers to every response.
func BuildPrimaryRoutes(in PrimaryRouterIn) http.Handler {
	router := mux.NewRouter()

	options := []otelmux.Option{
		otelmux.WithTracerProvider(in.Tracing.TracerProvider()),
		otelmux.WithPropagators(in.Tracing.Propagator()),
	}
	router.Use(otelmux.Middleware("server_primary", options...))
	if in.Tracing.Propagator() != nil {
		router.Use(candlelight.EchoFirstTraceNodeInfo(in.Tracing, false))
	}

	h := in.Handlers
	open, protected := in.Open, in.Protected

	router.Handle("/service/list", protected.Then(h.ListGoldens)).Methods(http.MethodGet)
	router.Handle("/service/state", protected.Then(h.State)).Methods(http.MethodGet)
	router.Handle("/service/testModes/list", open.Then(h.ListModes)).Methods(http.MethodGet)

	router.Handle("/service/mode", protected.Then(h.SelectMode)).Methods(http.MethodPost)
	router.Handle("/service/refresh", protected.Then(h.Refresh)).Methods(http.MethodPost)
	router.Handle("/service/presubmit_artifact/list", protected.Then(h.ListPresubmit)).Methods(http.MethodPost)
	router.Handle("/service/fetch_artifact", protected.Then(h.FetchArtifact)).Methods(http.MethodPost)

	router.Handle("/service/update", protected.Then(h.Update)).Methods(http.MethodPut)
	router.Handle("/service/updateSelectedGoldensIds", protected.Then(h.UpdateSelected)).Methods(http.MethodPut)

	router.Handle("/golden/{checksum}/{"+session.PathVarKey+":.*}", open.Then(h.GoldenFile)).Methods(http.MethodGet)
	router.Handle("/expected/{"+session.IDVarKey+"}", open.Then(h.ExpectedFile)).Methods(http.MethodGet)
	router.Handle("/getGerrit", open.Then(h.Gerrit)).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(in.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return in.Instrument.Append(cors).Then(router)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		header := rw.Header()
		header.Set("Access-Control-Allow-Origin", allowOrigin)
		header.Set("Access-Control-Allow-Methods", allowMethods)
		header.Set("Access-Control-Allow-Headers", allowHeaders)
		header.Set("Accept-ranges", "bytes")

		if r.Method == http.MethodOptions {
			header.Set("Allow", optionsMethods)
			rw.WriteHeader(http.StatusOK)
			rw.Write([]byte(optionsMethods))
			return
		}
		next.ServeHTTP(rw, r)
	})
}
