package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_notify_sent_total",
		Help: "Reminder pushes delivered by platform.",
	}, []string{"platform"})
	pushFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_notify_failed_total",
		Help: "Reminder push attempts that failed by platform.",
	}, []string{"platform"})
	pushDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_notify_dropped_total",
		Help: "Reminder pushes given up on, by reason.",
	}, []string{"reason"})
	pushQueueLen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roundtable_notify_queue_length",
		Help: "Reminder pushes waiting for a worker.",
	})
)
