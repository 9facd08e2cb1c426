// Package metrics holds the gateway's Prometheus instrumentation. All
// collectors are registered with the default registry and exposed by the
// gateway's /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection lifecycle
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_connections_total",
		Help: "Total number of WebSocket connections accepted",
	})

	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_connections_rejected_total",
		Help: "Connections rejected before the handshake, by reason",
	}, []string{"reason"})

	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wsgate_sessions_active",
		Help: "Current number of authenticated sessions",
	})

	SessionsSuperseded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_sessions_superseded_total",
		Help: "Registrations replaced by a newer session for the same identity",
	})

	// Handshake outcomes
	HandshakeTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_handshake_timeouts_total",
		Help: "Connections dropped for not presenting a token in time",
	})

	AuthFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_auth_failures_total",
		Help: "Rejected tokens by failure kind",
	}, []string{"reason"})

	// Delivery path
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_deliveries_total",
		Help: "Control-plane deliveries by outcome (delivered, offline, failed)",
	}, []string{"outcome"})

	BroadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_broadcasts_total",
		Help: "Control-plane broadcast requests served",
	})

	BroadcastRecipients = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_broadcast_recipients_total",
		Help: "Individual client writes attempted across all broadcasts",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_messages_sent_total",
		Help: "Messages successfully written to clients",
	})

	// Control plane
	ControlRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_control_requests_total",
		Help: "Control-plane requests by operation",
	}, []string{"op"})

	ControlErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_control_errors_total",
		Help: "Malformed or failed control-plane requests",
	})
)

func init() {
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(ConnectionsRejected)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionsSuperseded)

	prometheus.MustRegister(HandshakeTimeouts)
	prometheus.MustRegister(AuthFailures)

	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(BroadcastsTotal)
	prometheus.MustRegister(BroadcastRecipients)
	prometheus.MustRegister(MessagesSent)

	prometheus.MustRegister(ControlRequests)
	prometheus.MustRegister(ControlErrors)
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
