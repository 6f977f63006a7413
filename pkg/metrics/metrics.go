package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus instruments of the signpad client.
type Metrics struct {
	registry *prometheus.Registry

	connectAttempts *prometheus.CounterVec
	connStatus      *prometheus.GaugeVec
	msgReceived     *prometheus.CounterVec
	msgSent         *prometheus.CounterVec
	requests        *prometheus.CounterVec
	acks            *prometheus.CounterVec
	activeSlots     *prometheus.GaugeVec
}

// New builds a registry with process/Go collectors plus the client instruments.
func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	connectAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ws_connect_attempts_total"}, []string{"result"})
	connStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_connection_status"}, []string{"status"})
	msgReceived := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ws_messages_received_total"}, []string{"type"})
	msgSent := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ws_messages_sent_total"}, []string{"type"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "signature_requests_total"}, []string{"variant"})
	acks := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "signature_acks_total"}, []string{"variant", "outcome"})
	activeSlots := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "active_sessions"}, []string{"variant"})
	r.MustRegister(connectAttempts, connStatus, msgReceived, msgSent, requests, acks, activeSlots)

	return &Metrics{
		registry:        r,
		connectAttempts: connectAttempts,
		connStatus:      connStatus,
		msgReceived:     msgReceived,
		msgSent:         msgSent,
		requests:        requests,
		acks:            acks,
		activeSlots:     activeSlots,
	}
}

func (m *Metrics) ConnectAttempt(result string) {
	m.connectAttempts.WithLabelValues(result).Inc()
}

// SetStatus marks exactly one connection status as active.
func (m *Metrics) SetStatus(status string) {
	m.connStatus.Reset()
	m.connStatus.WithLabelValues(status).Set(1)
}

func (m *Metrics) MessageReceived(msgType string) {
	m.msgReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) MessageSent(msgType string) {
	m.msgSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RequestReceived(variant string) {
	m.requests.WithLabelValues(variant).Inc()
}

func (m *Metrics) Acknowledged(variant, outcome string) {
	m.acks.WithLabelValues(variant, outcome).Inc()
}

func (m *Metrics) SetActiveSessions(variant string, n int) {
	m.activeSlots.WithLabelValues(variant).Set(float64(n))
}

// Handler returns the Prometheus scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinHandler adapts the scrape handler for a gin router.
func (m *Metrics) GinHandler() gin.HandlerFunc {
	h := m.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
