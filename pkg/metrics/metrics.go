// Package metrics exposes the engine's Prometheus counters. Budget
// exhaustion and LLM fallbacks are metrics, not errors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoutedDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atendebot",
		Subsystem: "router",
		Name:      "decisions_total",
		Help:      "Routing plans computed, by rollout mode and box.",
	}, []string{"mode", "box"})

	BudgetDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atendebot",
		Subsystem: "budget",
		Name:      "denials_total",
		Help:      "Metered operations denied for lack of budget headroom.",
	}, []string{"kind"})

	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atendebot",
		Subsystem: "front",
		Name:      "fallbacks_total",
		Help:      "LLM front calls replaced by the safe fallback reply.",
	}, []string{"reason"})
)
