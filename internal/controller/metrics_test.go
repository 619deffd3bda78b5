package controller

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"llamad/internal/engine/enginetest"
)

func TestStateGaugeIsPerController(t *testing.T) {
	a := loaded(t, enginetest.New(), func(cfg *Config) { cfg.Name = "gauge-a" })
	newController(t, enginetest.New(), func(cfg *Config) { cfg.Name = "gauge-b" })

	gauge := func(name string, s State) float64 {
		return testutil.ToFloat64(stateGauge.WithLabelValues(name, string(s)))
	}
	require.Equal(t, StateReady, a.State())
	require.Equal(t, 1.0, gauge("gauge-a", StateReady))
	require.Equal(t, 0.0, gauge("gauge-a", StateUnloaded))
	require.Equal(t, 1.0, gauge("gauge-b", StateUnloaded))
	require.Equal(t, 0.0, gauge("gauge-b", StateReady))
}
