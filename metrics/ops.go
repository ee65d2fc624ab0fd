package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transfer directions for [OpMetrics.RecordBytes]
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

// OpMetrics records filesystem operation outcomes.
type OpMetrics interface {
	// RecordOp records one completed operation. status is the errno name
	// ("OK", "ENOENT", ...).
	RecordOp(op string, status string, duration time.Duration)

	// RecordBytes adds to the read or write byte counter
	RecordBytes(direction string, n int)

	// SetCapacity publishes the current node count and free counters
	SetCapacity(nodes int, freeInodes, freeBlocks uint64)
}

type opMetrics struct {
	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	bytesTotal *prometheus.CounterVec
	nodes      prometheus.Gauge
	freeInodes prometheus.Gauge
	freeBlocks prometheus.Gauge
}

// NewOpMetrics registers the operation metrics on the global registry.
// Returns a no-op implementation when metrics are disabled.
func NewOpMetrics() OpMetrics {
	return NewOpMetricsWith(GetRegistry())
}

// NewOpMetricsWith registers the operation metrics on reg; a nil reg yields a no-op implementation
func NewOpMetricsWith(reg *prometheus.Registry) OpMetrics {
	if reg == nil {
		return NewNoopOpMetrics()
	}

	return &opMetrics{
		opsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "memfs_ops_total",
				Help: "Total number of filesystem operations by operation and status",
			},
			[]string{"op", "status"},
		),
		opDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "memfs_op_duration_seconds",
				Help: "Duration of filesystem operations in seconds",
				Buckets: []float64{
					0.00001, // 10us
					0.0001,  // 100us
					0.001,   // 1ms
					0.01,    // 10ms
					0.1,     // 100ms
					1.0,     // 1s
				},
			},
			[]string{"op"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "memfs_bytes_total",
				Help: "Total bytes moved through read and write operations",
			},
			[]string{"direction"},
		),
		nodes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "memfs_nodes",
				Help: "Current number of non-root nodes",
			},
		),
		freeInodes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "memfs_free_inodes",
				Help: "Free inode counter reported by statfs",
			},
		),
		freeBlocks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "memfs_free_blocks",
				Help: "Free block counter reported by statfs",
			},
		),
	}
}

func (m *opMetrics) RecordOp(op string, status string, duration time.Duration) {
	m.opsTotal.WithLabelValues(op, status).Inc()
	m.opDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *opMetrics) RecordBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	m.bytesTotal.WithLabelValues(direction).Add(float64(n))
}

func (m *opMetrics) SetCapacity(nodes int, freeInodes, freeBlocks uint64) {
	m.nodes.Set(float64(nodes))
	m.freeInodes.Set(float64(freeInodes))
	m.freeBlocks.Set(float64(freeBlocks))
}

// noopOpMetrics discards everything
type noopOpMetrics struct{}

// NewNoopOpMetrics returns an OpMetrics that records nothing
func NewNoopOpMetrics() OpMetrics {
	return noopOpMetrics{}
}

func (noopOpMetrics) RecordOp(op string, status string, duration time.Duration) {}
func (noopOpMetrics) RecordBytes(direction string, n int)                       {}
func (noopOpMetrics) SetCapacity(nodes int, freeInodes, freeBlocks uint64)      {}
