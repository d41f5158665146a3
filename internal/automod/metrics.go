package automod

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "adresu_automod"

var (
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "messages_total",
		Help:      "Messages evaluated, by outcome.",
	}, []string{"outcome"})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "violations_total",
		Help:      "Detected violations, by kind.",
	}, []string{"kind"})

	warningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "warnings_issued_total",
		Help:      "Warning records appended to the ledger, by source.",
	}, []string{"source"})

	punishmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "punishments_total",
		Help:      "Punishment attempts, by action and result.",
	}, []string{"action", "result"})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "side_effect_failures_total",
		Help:      "Failed best-effort platform calls, by operation.",
	}, []string{"operation"})

	evalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "evaluation_duration_seconds",
		Help:      "Time spent evaluating one message, excluding asynchronous side effects.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
)

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "applied"
}
