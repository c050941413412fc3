package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatproxy",
		Name:      "queue_depth",
		Help:      "Jobs waiting in each provider lane.",
	}, []string{"provider"})
	metricJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatproxy",
		Name:      "queue_jobs_total",
		Help:      "Jobs by provider and outcome (ok, error, overloaded, expired).",
	}, []string{"provider", "outcome"})
)
