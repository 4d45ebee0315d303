package httptransport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_http_sessions_created_total",
		Help: "Session creation requests by result.",
	}, []string{"result"})
	tokensIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_http_tokens_issued_total",
		Help: "Session token requests by result.",
	}, []string{"result"})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
