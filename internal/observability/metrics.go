package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	launchTotal      *prometheus.CounterVec
	terminationTotal prometheus.Counter
	activeRuns       prometheus.Gauge

	commandSendTotal    *prometheus.CounterVec
	commandSendDuration prometheus.Histogram
	commandRetriesTotal prometheus.Counter

	pipeWriteTotal *prometheus.CounterVec

	responseReadTotal    *prometheus.CounterVec
	responseReadDuration prometheus.Histogram
	framesDiscardedTotal *prometheus.CounterVec
	engineFatalTotal     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			launchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "launch_total",
					Help: "Total engine launches by status.",
				},
				[]string{"status"},
			),
			terminationTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "termination_total",
					Help: "Total engine terminations.",
				},
			),
			activeRuns: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_runs",
					Help: "Current live run count.",
				},
			),
			commandSendTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "command_send_total",
					Help: "Total command sends by status.",
				},
				[]string{"status"},
			),
			commandSendDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "command_send_duration_seconds",
					Help:    "Command send duration in seconds, retries included.",
					Buckets: prometheus.DefBuckets,
				},
			),
			commandRetriesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "command_retries_total",
					Help: "Total command send retry attempts.",
				},
			),
			pipeWriteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pipe_write_total",
					Help: "Total command pipe write attempts by status.",
				},
				[]string{"status"},
			),
			responseReadTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "response_read_total",
					Help: "Total response reads by outcome.",
				},
				[]string{"outcome"},
			),
			responseReadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "response_read_duration_seconds",
					Help:    "Response read duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			framesDiscardedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "frames_discarded_total",
					Help: "Total response frames discarded by reason.",
				},
				[]string{"reason"},
			),
			engineFatalTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "engine_fatal_total",
					Help: "Total fatal engine conditions by kind.",
				},
				[]string{"kind"},
			),
		}

		prometheus.MustRegister(
			m.launchTotal,
			m.terminationTotal,
			m.activeRuns,
			m.commandSendTotal,
			m.commandSendDuration,
			m.commandRetriesTotal,
			m.pipeWriteTotal,
			m.responseReadTotal,
			m.responseReadDuration,
			m.framesDiscardedTotal,
			m.engineFatalTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordLaunch(success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.launchTotal.WithLabelValues(status).Inc()
}

func RecordTermination() {
	m := getMetrics()
	m.terminationTotal.Inc()
}

func SetActiveRuns(count int) {
	m := getMetrics()
	m.activeRuns.Set(float64(count))
}

func RecordCommandSend(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.commandSendTotal.WithLabelValues(status).Inc()
	m.commandSendDuration.Observe(duration.Seconds())
}

func RecordSendRetry() {
	m := getMetrics()
	m.commandRetriesTotal.Inc()
}

func RecordWriteAttempt(success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.pipeWriteTotal.WithLabelValues(status).Inc()
}

func RecordResponseRead(duration time.Duration, outcome string) {
	m := getMetrics()
	m.responseReadTotal.WithLabelValues(outcome).Inc()
	m.responseReadDuration.Observe(duration.Seconds())
}

func RecordFrameDiscarded(reason string) {
	m := getMetrics()
	m.framesDiscardedTotal.WithLabelValues(reason).Inc()
}

func RecordEngineFatal(kind string) {
	m := getMetrics()
	m.engineFatalTotal.WithLabelValues(kind).Inc()
}
