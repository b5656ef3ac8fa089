package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics tracks sessions and the messages pushed to them.
type WebSocketMetrics struct {
	ActiveConnections prometheus.Gauge
	Rejections        *prometheus.CounterVec
	Disconnects       prometheus.Counter
	MessagesSent      *prometheus.CounterVec
	SendFailures      prometheus.Counter
}

func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of live WebSocket sessions.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejections_total",
			Help:      "Connection attempts refused, by reason.",
		}, []string{"reason"}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "disconnects_total",
			Help:      "Total number of sessions removed from the registry.",
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Messages delivered to sessions, by message type.",
		}, []string{"type"}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "send_failures_total",
			Help:      "Total number of failed or timed out sends.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.Rejections, m.Disconnects, m.MessagesSent, m.SendFailures)
	return m
}
