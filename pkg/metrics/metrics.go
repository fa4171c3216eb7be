package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "order_core"

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	StockOperations    *prometheus.CounterVec
	OrderTransitions   *prometheus.CounterVec
	PaymentSettlements *prometheus.CounterVec
	OutboxPublished    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StockOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "operations_total",
			Help:      "Stock ledger operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "transitions_total",
			Help:      "Order status transitions by target status and trigger.",
		}, []string{"status", "trigger"}),
		PaymentSettlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "settlements_total",
			Help:      "Payment settlements by resulting status.",
		}, []string{"status"}),
		OutboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox relay attempts by topic and result.",
		}, []string{"topic", "result"}),
	}

	reg.MustRegister(m.StockOperations, m.OrderTransitions, m.PaymentSettlements, m.OutboxPublished)
	return m
}

func (m *Metrics) StockOp(op string, err error) {
	if m == nil {
		return
	}
	m.StockOperations.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) OrderTransition(status, trigger string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(status, trigger).Inc()
}

func (m *Metrics) PaymentSettled(status string) {
	if m == nil {
		return
	}
	m.PaymentSettlements.WithLabelValues(status).Inc()
}

func (m *Metrics) OutboxRelay(topic string, err error) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(topic, outcome(err)).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
