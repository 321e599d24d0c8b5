// Package metrics provides Prometheus metrics for the secret-replication daemon.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DaemonCollector collects daemon-wide process metrics: build info, uptime,
// and Go runtime stats not already covered by RuntimeCollector. Per-pipeline
// audit-connection and sync-queue metrics live in prometheus.go instead,
// since they need a pipeline label that a daemon-wide collector can't carry.
type DaemonCollector struct {
	mu sync.RWMutex

	// Daemon info
	daemonInfo *prometheus.GaugeVec

	// Uptime
	startTime time.Time
	uptime    prometheus.Gauge

	// Runtime metrics
	goroutines prometheus.Gauge
	threads    prometheus.Gauge
	heapAlloc  prometheus.Gauge
	heapSys    prometheus.Gauge
	gcPause    prometheus.Histogram
}

// NewDaemonCollector creates a new DaemonCollector.
func NewDaemonCollector(serviceName, version string) *DaemonCollector {
	gc := &DaemonCollector{
		startTime: time.Now(),
	}

	gc.daemonInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "info",
			Help:      "Daemon build and runtime information",
		},
		[]string{"service", "version", "go_version"},
	)
	gc.daemonInfo.WithLabelValues(serviceName, version, runtime.Version()).Set(1)

	gc.uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "uptime_seconds",
			Help:      "Daemon uptime in seconds",
		},
	)

	gc.goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	gc.threads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "threads",
			Help:      "Current number of OS threads",
		},
	)

	gc.heapAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "heap_alloc_bytes",
			Help:      "Current heap allocation in bytes",
		},
	)

	gc.heapSys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "heap_sys_bytes",
			Help:      "Total heap memory obtained from OS",
		},
	)

	gc.gcPause = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "gc_pause_seconds",
			Help:      "GC pause duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	return gc
}

// Collect updates all metrics. Should be called periodically.
func (gc *DaemonCollector) Collect() {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	// Update uptime
	gc.uptime.Set(time.Since(gc.startTime).Seconds())

	// Update runtime metrics
	gc.goroutines.Set(float64(runtime.NumGoroutine()))

	// Update thread count - note: this is an approximation
	// Go doesn't expose exact thread count, but GOMAXPROCS gives the max
	gc.threads.Set(float64(runtime.GOMAXPROCS(0)))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	gc.heapAlloc.Set(float64(memStats.HeapAlloc))
	gc.heapSys.Set(float64(memStats.HeapSys))

	// Record GC pause times - fixed index calculation
	if memStats.NumGC > 0 {
		// PauseNs is a circular buffer of the last 256 GC pause times
		// The most recent pause is at index (NumGC - 1) % 256
		idx := (memStats.NumGC - 1) % 256
		pauseNs := memStats.PauseNs[idx]
		gc.gcPause.Observe(float64(pauseNs) / 1e9)
	}
}

// RuntimeCollector collects Go runtime metrics.
type RuntimeCollector struct {
	memStats runtime.MemStats

	// Memory metrics
	allocBytes      prometheus.Gauge
	totalAllocBytes prometheus.Counter
	sysBytes        prometheus.Gauge
	mallocsTotal    prometheus.Counter
	freesTotal      prometheus.Counter

	// GC metrics
	gcSysBytes    prometheus.Gauge
	gcNextBytes   prometheus.Gauge
	gcCPUFraction prometheus.Gauge
	numGC         prometheus.Counter

	// Goroutine metrics
	numGoroutines prometheus.Gauge
	numCgoCall    prometheus.Counter
}

// NewRuntimeCollector creates a new RuntimeCollector.
func NewRuntimeCollector() *RuntimeCollector {
	rc := &RuntimeCollector{}

	rc.allocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "alloc_bytes",
			Help:      "Number of bytes allocated and still in use",
		},
	)

	rc.totalAllocBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "total_alloc_bytes_total",
			Help:      "Total number of bytes allocated (even if freed)",
		},
	)

	rc.sysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "sys_bytes",
			Help:      "Number of bytes obtained from system",
		},
	)

	rc.mallocsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "mallocs_total",
			Help:      "Total number of mallocs",
		},
	)

	rc.freesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "frees_total",
			Help:      "Total number of frees",
		},
	)

	rc.gcSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "gc_sys_bytes",
			Help:      "Number of bytes used for garbage collection system metadata",
		},
	)

	rc.gcNextBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "gc_next_bytes",
			Help:      "Target heap size of the next GC cycle",
		},
	)

	rc.gcCPUFraction = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "gc_cpu_fraction",
			Help:      "Fraction of CPU time used by GC",
		},
	)

	rc.numGC = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "gc_completed_total",
			Help:      "Total number of completed GC cycles",
		},
	)

	rc.numGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "goroutines",
			Help:      "Number of goroutines",
		},
	)

	rc.numCgoCall = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "cgo_calls_total",
			Help:      "Total number of cgo calls",
		},
	)

	return rc
}

// Collect updates the runtime gauges. The counters (total_alloc_bytes,
// mallocs, frees, gc_completed, cgo_calls) are registered but not updated.
func (rc *RuntimeCollector) Collect() {
	runtime.ReadMemStats(&rc.memStats)

	rc.allocBytes.Set(float64(rc.memStats.Alloc))
	rc.sysBytes.Set(float64(rc.memStats.Sys))
	rc.gcSysBytes.Set(float64(rc.memStats.GCSys))
	rc.gcNextBytes.Set(float64(rc.memStats.NextGC))
	rc.gcCPUFraction.Set(rc.memStats.GCCPUFraction)
	rc.numGoroutines.Set(float64(runtime.NumGoroutine()))
}
