package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_session_operations_total",
		Help: "Actor operations by type and result code.",
	}, []string{"op", "code"})
	activeActors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roundtable_session_active_actors",
		Help: "Sessions currently hosted in this process.",
	})
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_session_notifications_total",
		Help: "Notifications broadcast by type.",
	}, []string{"type"})
	notificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundtable_session_notifications_dropped_total",
		Help: "Notifications skipped for a subscriber whose buffer was full.",
	})
	roundsAdvanced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundtable_session_rounds_advanced_total",
		Help: "Round transitions observed by actors.",
	})
)

func observeOp(op string, err error) {
	code := "ok"
	if err != nil {
		code = ErrorCode(err).Code
	}
	operationsTotal.WithLabelValues(op, code).Inc()
}
