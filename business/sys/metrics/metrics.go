// Package metrics constructs the metrics the application will track.
package metrics

import (
	"runtime"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every metric of the node.
const namespace = "ethsim"

// Set of metrics tracked by the node. They are registered with the default
// prometheus registry and exposed by the debug service.
var (
	requests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Number of HTTP requests served.",
	})

	errors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Number of HTTP requests that failed.",
	})

	panics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "panics_total",
		Help:      "Number of panics recovered while serving requests.",
	})

	goroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "goroutines",
		Help:      "Number of goroutines sampled while serving requests.",
	})

	rpcCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Number of JSON-RPC calls per method.",
	}, []string{"method"})

	rpcErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "errors_total",
		Help:      "Number of failed JSON-RPC calls per method.",
	}, []string{"method"})

	rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "duration_seconds",
		Help:      "Time spent serving JSON-RPC calls per method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	blocks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "block_number",
		Help:      "Number of the latest committed block.",
	})

	subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscriptions",
		Help:      "Number of live subscriptions.",
	})
)

// served counts requests to pace the goroutine sampling.
var served atomic.Uint64

// AddRequests increments the request count and samples the goroutines
// every hundred requests.
func AddRequests() {
	requests.Inc()

	if served.Add(1)%100 == 0 {
		goroutines.Set(float64(runtime.NumGoroutine()))
	}
}

// AddErrors increments the error count.
func AddErrors() {
	errors.Inc()
}

// AddPanics increments the panic count.
func AddPanics() {
	panics.Inc()
}

// ObserveCall records a served JSON-RPC call.
func ObserveCall(method string, seconds float64, failed bool) {
	rpcCalls.WithLabelValues(method).Inc()
	rpcDuration.WithLabelValues(method).Observe(seconds)

	if failed {
		rpcErrors.WithLabelValues(method).Inc()
	}
}

// SetBlockNumber records the number of the latest committed block.
func SetBlockNumber(number uint64) {
	blocks.Set(float64(number))
}

// SetSubscriptions records the number of live subscriptions.
func SetSubscriptions(n int) {
	subscriptions.Set(float64(n))
}
