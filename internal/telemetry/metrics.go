package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pipeflow/internal/logging"
)

// Task outcomes.
const (
	OutcomeOutput  = "output"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
	OutcomeStopped = "stopped"
)

// Metrics groups the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	taskExecutions  *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	subprocesses    prometheus.Gauge
	subprocessExits *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		taskExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeflow",
			Name:      "task_executions_total",
			Help:      "Task executions by outcome.",
		}, []string{"process", "task", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeflow",
			Name:      "runs_total",
			Help:      "Process runs by final status.",
		}, []string{"process", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipeflow",
			Name:      "run_duration_seconds",
			Help:      "Process run duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"process"}),
		subprocesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeflow",
			Name:      "subprocesses_running",
			Help:      "Child processes currently running.",
		}),
		subprocessExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeflow",
			Name:      "subprocess_exits_total",
			Help:      "Child process exits by status.",
		}, []string{"status"}),
	}
	m.Registry.MustRegister(m.taskExecutions, m.runs, m.runDuration, m.subprocesses, m.subprocessExits)
	return m
}

func (m *Metrics) ObserveTask(process, task, outcome string) {
	if m == nil {
		return
	}
	m.taskExecutions.WithLabelValues(process, task, outcome).Inc()
}

func (m *Metrics) ObserveRun(process, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(process, status).Inc()
	m.runDuration.WithLabelValues(process).Observe(d.Seconds())
}

func (m *Metrics) SubprocessStarted() {
	if m == nil {
		return
	}
	m.subprocesses.Inc()
}

func (m *Metrics) SubprocessExited(status string) {
	if m == nil {
		return
	}
	m.subprocesses.Dec()
	m.subprocessExits.WithLabelValues(status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server serves /metrics until Shutdown.
type Server struct {
	http *http.Server
}

func Expose(port int, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	s := &Server{http: &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics server stopped", "port", port, "err", err)
		}
	}()
	return s
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
