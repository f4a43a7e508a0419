// Package metrics exposes Prometheus collectors for the swap coordinator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// FlowsStartedTotal counts coordinator flow invocations that passed
	// validation and reached the step sequencer.
	FlowsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapd_flows_started_total",
		Help: "Coordinator flows started, by flow kind",
	}, []string{"flow"})

	// FlowsFinishedTotal counts terminal flow outcomes.
	FlowsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapd_flows_finished_total",
		Help: "Coordinator flows finished, by flow kind and outcome",
	}, []string{"flow", "outcome"})

	// StepDurationSeconds observes submit-to-confirm latency per step.
	StepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapd_step_duration_seconds",
		Help:    "Ledger step duration from submit to confirmation",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"flow", "step"})
)

func FlowStarted(flow string) {
	FlowsStartedTotal.WithLabelValues(flow).Inc()
}

func FlowFinished(flow, outcome string) {
	FlowsFinishedTotal.WithLabelValues(flow, outcome).Inc()
}

func ObserveStepDuration(flow, step string, seconds float64) {
	StepDurationSeconds.WithLabelValues(flow, step).Observe(seconds)
}

// Serve starts the Prometheus scrape endpoint on its own mux.
func Serve(addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorw("metrics_server_failed", "addr", addr, "err", err)
		}
	}()
}
