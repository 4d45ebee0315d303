package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roundtable_ws_connections_active",
		Help: "Open websocket connections.",
	})
	connectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_ws_connections_total",
		Help: "Websocket connection attempts by outcome.",
	}, []string{"result"})
	resyncsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundtable_ws_resyncs_total",
		Help: "Reconnects whose last event id could not be replayed.",
	})
)
