package controller

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "generations_total",
			Help:      "Finished generations by completion reason",
		},
		[]string{"reason"},
	)

	tokensGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "tokens_generated_total",
			Help:      "Tokens sampled across all generations",
		},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "loads_total",
			Help:      "Model loads by result",
		},
		[]string{"result"},
	)

	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "load_duration_seconds",
			Help:      "Time spent loading a model and creating its context",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	taskPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "task_panics_total",
			Help:      "Panics recovered on the serialized executor",
		},
		[]string{"task"},
	)

	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "state",
			Help:      "1 for the current controller state, 0 otherwise",
		},
		[]string{"controller", "state"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, tokensGenerated, loadsTotal, loadDuration, taskPanics, stateGauge)
}

var allStates = []State{StateUnloaded, StateLoading, StateReady, StateGenerating, StateUnloading}

func observeState(name string, s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		stateGauge.WithLabelValues(name, string(st)).Set(v)
	}
}
