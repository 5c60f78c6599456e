// internal/services/metrics.go
package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	transitions   *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	autoApprovals *prometheus.CounterVec
	notifications *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planning",
			Name:      "transitions_total",
			Help:      "State transitions committed, by machine, type and event.",
		}, []string{"machine", "type", "event"}),
		conflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planning",
			Name:      "conflicts_total",
			Help:      "Operations refused because another live record exists.",
		}, []string{"kind"}),
		autoApprovals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planning",
			Name:      "auto_approvals_total",
			Help:      "Auto-approval attempts by outcome.",
		}, []string{"type", "result"}),
		notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planning",
			Name:      "notifications_total",
			Help:      "Notification deliveries by template and result.",
		}, []string{"template", "result"}),
		sweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "planning",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of auto-approval sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
})
