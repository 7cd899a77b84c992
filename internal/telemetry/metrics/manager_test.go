package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CountersRegistered(t *testing.T) {
	manager, registry := NewTestManagerAndRegistry()

	manager.CounterEventsCreated.Inc()
	manager.CounterEventsStarted.Inc()
	manager.CounterEventsStarted.Inc()
	manager.CounterPositionUpdates.Add(3)
	manager.CounterBroadcastsSent.WithLabelValues("eventStarted").Inc()

	gathered, err := registry.Gather()
	require.NoError(t, err)

	counterValues := map[string]float64{}
	for _, mf := range gathered {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				counterValues[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, float64(1), counterValues["pacebuddies_test_server_events_created"])
	assert.Equal(t, float64(2), counterValues["pacebuddies_test_server_events_started"])
	assert.Equal(t, float64(3), counterValues["pacebuddies_test_server_position_updates"])
	assert.Equal(t, float64(1), counterValues["pacebuddies_test_server_broadcasts_sent"])
}

func TestManager_GaugeLifeSignal(t *testing.T) {
	manager, registry := NewTestManagerAndRegistry()
	manager.GaugeLifeSignal.Set(1)

	gathered, err := registry.Gather()
	require.NoError(t, err)

	var lifeSignal *dto.Metric
	for _, mf := range gathered {
		if mf.GetName() == "pacebuddies_test_server_life_signal" {
			lifeSignal = mf.GetMetric()[0]
		}
	}
	require.NotNil(t, lifeSignal)
	assert.Equal(t, float64(1), lifeSignal.GetGauge().GetValue())
}
