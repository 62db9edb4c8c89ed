package ingest

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce    sync.Once
	decisionsTotal *prometheus.CounterVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "ingest",
			Name:      "decisions_total",
			Help:      "Admission decisions by outcome and suppression reason",
		}, []string{"outcome", "reason"})

		if err := prometheus.Register(decisionsTotal); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					decisionsTotal = existing
				}
			}
		}
	})
}

func recordDecision(outcome, reason string) {
	initMetrics()
	decisionsTotal.With(prometheus.Labels{"outcome": outcome, "reason": reason}).Inc()
}
