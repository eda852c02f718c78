// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/sallust"
)

const (
	// TokenHeader carries the process access token.
	TokenHeader = "Golden-Access-Token"

	bearerPrefix = "Bearer "

	rejectedMessage = "Bad authorization token!"
)

// Enforcer rejects requests that do not present the process access token.
type Enforcer struct {
	token    string
	outcomes *prometheus.CounterVec
}

func NewEnforcer(token string, outcomes *prometheus.CounterVec) *Enforcer {
	return &Enforcer{token: token, outcomes: outcomes}
}

// Presented returns the token a request carries, preferring TokenHeader over
// a bearer Authorization header.
func Presented(r *http.Request) string {
	if t := r.Header.Get(TokenHeader); len(t) > 0 {
		return t
	}
	if a := r.Header.Get("Authorization"); strings.HasPrefix(a, bearerPrefix) {
		return strings.TrimPrefix(a, bearerPrefix)
	}
	return ""
}

func (e *Enforcer) Valid(r *http.Request) bool {
	presented := Presented(r)
	return len(presented) > 0 &&
		subtle.ConstantTimeCompare([]byte(presented), []byte(e.token)) == 1
}

// Constructor returns the alice middleware.  Rejected requests get a 403 and
// never reach the delegate.
func (e *Enforcer) Constructor() alice.Constructor {
	return func(delegate http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !e.Valid(r) {
				e.record(RejectedOutcome)
				sallust.Get(r.Context()).Info("rejected request with a bad access token")
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(rejectedMessage))
				return
			}
			e.record(AcceptedOutcome)
			delegate.ServeHTTP(w, r)
		})
	}
}

func (e *Enforcer) record(outcome string) {
	if e.outcomes == nil {
		return
	}
	e.outcomes.With(prometheus.Labels{OutcomeLabel: outcome}).Inc()
}
