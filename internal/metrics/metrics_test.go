package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersInstruments(t *testing.T) {
	m := New()

	m.MessagesReceived.WithLabelValues(ResultTraffic).Inc()
	m.MessagesReceived.WithLabelValues(ResultMalformed).Add(2)
	m.SinkErrors.WithLabelValues("csv").Inc()
	m.TableFlows.Set(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues(ResultTraffic)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues(ResultMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("csv")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.TableFlows))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["spintraffic_bus_messages_received_total"])
	assert.True(t, names["spintraffic_report_sink_errors_total"])
	assert.True(t, names["go_goroutines"])
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.FlowsIngested.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.FlowsIngested))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FlowsIngested))
}
