// Package metrics records served benchmark calls as Prometheus metrics and
// exposes them with a small HTTP router.
package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/signalnine/hpobench/internal/benchmark"
)

const namespace = "hpobench"

// Recorder holds the metric families. A nil *Recorder records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	calls       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	evaluations *prometheus.CounterVec
	lastValue   *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Benchmark RPC calls by method and status code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Benchmark RPC latency by method.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"method"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Objective evaluations by scenario and instance.",
		}, []string{"scenario", "instance"}),
		lastValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_function_value",
			Help:      "Function value of the latest evaluation.",
		}, []string{"scenario", "instance"}),
	}
	r.registry.MustRegister(
		r.calls, r.latency, r.evaluations, r.lastValue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveCall(method, code string, d time.Duration) {
	if r == nil {
		return
	}
	r.calls.WithLabelValues(method, code).Inc()
	r.latency.WithLabelValues(method).Observe(d.Seconds())
}

func (r *Recorder) ObserveEvaluation(scenario, instance string, value float64) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(scenario, instance).Inc()
	r.lastValue.WithLabelValues(scenario, instance).Set(value)
}

// MetaFunc reports the meta information of the served benchmark.
type MetaFunc func() (*benchmark.MetaInformation, error)

// NewRouter serves /metrics, /healthz and /meta.
func NewRouter(r *Recorder, meta MetaFunc) *mux.Router {
	router := mux.NewRouter()
	if r != nil {
		router.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/meta", func(w http.ResponseWriter, _ *http.Request) {
		if meta == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no benchmark"})
			return
		}
		m, err := meta()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, m)
	}).Methods(http.MethodGet)
	return router
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to write response: %v", err)
	}
}
