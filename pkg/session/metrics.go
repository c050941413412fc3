package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatproxy",
		Name:      "sessions_active",
		Help:      "Number of live browser sessions.",
	})
	metricSessionStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatproxy",
		Name:      "session_starts_total",
		Help:      "Successful browser session starts, by provider.",
	}, []string{"provider"})
	metricSessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatproxy",
		Name:      "session_failures_total",
		Help:      "Jobs that failed inside a session, by provider.",
	}, []string{"provider"})
	metricJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatproxy",
		Name:      "job_duration_seconds",
		Help:      "Wall time a job held the session, by provider and outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"provider", "outcome"})
)
