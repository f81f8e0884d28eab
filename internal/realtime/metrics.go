package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ripple",
		Subsystem: "ws",
		Name:      "connections_active",
		Help:      "Number of live realtime connections.",
	})

	metricMessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ripple",
		Name:      "messages_appended_total",
		Help:      "Messages persisted via the realtime send path.",
	})

	metricDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ripple",
		Name:      "deliveries_total",
		Help:      "Message delivery attempts by outcome.",
	}, []string{"outcome"})

	metricPresenceFanout = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ripple",
		Name:      "presence_fanout_total",
		Help:      "Presence status events fanned out to online friends.",
	})

	metricTypingRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ripple",
		Name:      "typing_relayed_total",
		Help:      "Typing signals relayed to online recipients.",
	})
)

// Delivery outcome label values.
const (
	deliveryInProcess = "in_process"
	deliveryOffline   = "offline"
)
