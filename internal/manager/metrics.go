package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "session",
			Name:      "state",
			Help:      "1 for the current model session state",
		},
		[]string{"state"},
	)

	modelBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "session",
			Name:      "model_bytes",
			Help:      "Estimated resident size of the loaded model",
		},
	)

	loadDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "session",
			Name:      "load_duration_seconds",
			Help:      "Wall time of the model load sequence",
		},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Generation requests by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Tokens processed by kind (prompt or completion)",
		},
		[]string{"kind"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Generation latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"mode"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "admission",
			Name:      "queue_depth",
			Help:      "Requests holding a queue slot",
		},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "admission",
			Name:      "inflight",
			Help:      "Generations currently running",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionState, modelBytes, loadDuration, generationsTotal, tokensTotal, generationDuration, queueDepth, inflight)
}

var allStates = []State{StateUnloaded, StateLoading, StateReady, StateFailed, StateClosed}

func setStateGauge(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		sessionState.WithLabelValues(string(st)).Set(v)
	}
}

func observeGeneration(mode, outcome string, seconds float64, prompt, completion int) {
	generationsTotal.WithLabelValues(mode, outcome).Inc()
	generationDuration.WithLabelValues(mode).Observe(seconds)
	tokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	tokensTotal.WithLabelValues("completion").Add(float64(completion))
}
