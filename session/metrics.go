// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	ModeSelectionCounter = "mode_selections_total"
	PromotionCounter     = "golden_promotions_total"
	CachedGoldensGauge   = "cached_goldens"
)

// Labels
const (
	ModeTypeLabel = "mode_type"
	OutcomeLabel  = "outcome"
)

// Label Values
const (
	CachedOutcome   = "cached"
	CreatedOutcome  = "created"
	FailureOutcome  = "failure"
	UpdatedOutcome  = "updated"
	NotFoundOutcome = "not_found"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: ModeSelectionCounter,
				Help: "Counter for mode selections (and whether they were served from the mode cache).",
			},
			ModeTypeLabel, OutcomeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: PromotionCounter,
				Help: "Counter for golden promotions into the source checkout.",
			},
			OutcomeLabel,
		),
		touchstone.GaugeVec(
			prometheus.GaugeOpts{
				Name: CachedGoldensGauge,
				Help: "Number of goldens cached by the active mode.",
			},
			ModeTypeLabel,
		),
	)
}

type Measures struct {
	fx.In
	ModeSelections *prometheus.CounterVec `name:"mode_selections_total"`
	Promotions     *prometheus.CounterVec `name:"golden_promotions_total"`
	CachedGoldens  *prometheus.GaugeVec   `name:"cached_goldens"`
}

func (m *Measures) selection(modeType, outcome string) {
	if m == nil || m.ModeSelections == nil {
		return
	}
	m.ModeSelections.With(prometheus.Labels{ModeTypeLabel: modeType, OutcomeLabel: outcome}).Inc()
}

func (m *Measures) promotion(outcome string) {
	if m == nil || m.Promotions == nil {
		return
	}
	m.Promotions.With(prometheus.Labels{OutcomeLabel: outcome}).Inc()
}

func (m *Measures) cached(modeType string, n int) {
	if m == nil || m.CachedGoldens == nil {
		return
	}
	m.CachedGoldens.With(prometheus.Labels{ModeTypeLabel: modeType}).Set(float64(n))
}
