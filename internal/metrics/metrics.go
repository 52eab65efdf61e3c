package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warden"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	instanceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "instance",
			Name:      "starts_total",
			Help:      "Number of instance boots by mode (foreground, daemon, master, worker).",
		}, []string{"mode"},
	)
	kills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "instance",
			Name:      "kills_total",
			Help:      "Number of kill targets processed by signal and outcome.",
		}, []string{"signal", "outcome"},
	)
	staleRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pidfile",
			Name:      "stale_removed_total",
			Help:      "Number of PID files removed because their process was gone.",
		},
	)
	signalsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "received_total",
			Help:      "Number of trapped signals delivered to handlers.",
		}, []string{"signal"},
	)
	privilegeDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "privilege",
			Name:      "drops_total",
			Help:      "Number of privilege drop attempts by result.",
		}, []string{"result"},
	)
	workersRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "workers_running",
			Help:      "Current number of live cluster workers.",
		},
	)
	workerExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "worker_exits_total",
			Help:      "Number of worker exits per port.",
		}, []string{"port"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{instanceStarts, kills, staleRemoved, signalsReceived, privilegeDrops, workersRunning, workerExits}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			// already registered with this registerer: keep the existing one
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Enabled reports whether Register has succeeded.
func Enabled() bool { return regOK.Load() }

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(mode string) {
	if regOK.Load() {
		instanceStarts.WithLabelValues(mode).Inc()
	}
}

func IncKill(signal, outcome string) {
	if regOK.Load() {
		kills.WithLabelValues(signal, outcome).Inc()
	}
}

func IncStaleRemoved() {
	if regOK.Load() {
		staleRemoved.Inc()
	}
}

func IncSignal(signal string) {
	if regOK.Load() {
		signalsReceived.WithLabelValues(signal).Inc()
	}
}

func IncPrivilegeDrop(result string) {
	if regOK.Load() {
		privilegeDrops.WithLabelValues(result).Inc()
	}
}

func SetWorkersRunning(n int) {
	if regOK.Load() {
		workersRunning.Set(float64(n))
	}
}

func IncWorkerExit(port string) {
	if regOK.Load() {
		workerExits.WithLabelValues(port).Inc()
	}
}
