package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStockOp(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StockOp("reserve", nil)
	m.StockOp("reserve", nil)
	m.StockOp("reserve", errors.New("boom"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.StockOperations.WithLabelValues("reserve", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StockOperations.WithLabelValues("reserve", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.StockOp("release", nil)
		m.OrderTransition("CONFIRMED", "payment")
		m.PaymentSettled("COMPLETED")
		m.OutboxRelay("order_events", nil)
	})
}
