package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snakeyard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snakeyard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	arenaTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "snakeyard",
		Subsystem: "arena",
		Name:      "ticks_total",
		Help:      "Simulation ticks advanced.",
	})
	arenaTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "snakeyard",
		Subsystem: "arena",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one drain, advance and publish cycle.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
	arenaLiveSnakes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "snakeyard",
		Subsystem: "arena",
		Name:      "live_snakes",
		Help:      "Snakes currently on the grid.",
	})
	arenaEliminations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "snakeyard",
		Subsystem: "arena",
		Name:      "eliminations_total",
		Help:      "Snakes eliminated.",
	})
	arenaCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snakeyard",
			Subsystem: "arena",
			Name:      "commands_total",
			Help:      "Control commands applied by the arena worker.",
		},
		[]string{"kind", "result"},
	)

	ingressConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "snakeyard",
		Subsystem: "ingress",
		Name:      "connections",
		Help:      "Open control connections.",
	})
	ingressDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snakeyard",
			Subsystem: "ingress",
			Name:      "dropped_total",
			Help:      "Control frames dropped or connections closed, by reason.",
		},
		[]string{"reason"},
	)

	egressSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snakeyard",
			Subsystem: "egress",
			Name:      "sent_total",
			Help:      "Broadcast frames handed to a sink.",
		},
		[]string{"sink", "type"},
	)
	egressErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snakeyard",
			Subsystem: "egress",
			Name:      "errors_total",
			Help:      "Broadcast send failures.",
		},
		[]string{"sink"},
	)
	egressBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "snakeyard",
		Subsystem: "egress",
		Name:      "frame_bytes",
		Help:      "Encoded broadcast frame size.",
		Buckets:   prometheus.ExponentialBuckets(64, 2, 11),
	})
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			arenaTicks, arenaTickDuration, arenaLiveSnakes, arenaEliminations, arenaCommands,
			ingressConnections, ingressDropped,
			egressSent, egressErrors, egressBytes,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTick(duration time.Duration, live int, eliminated int) {
	RegisterMetrics()
	arenaTicks.Inc()
	arenaTickDuration.Observe(duration.Seconds())
	arenaLiveSnakes.Set(float64(live))
	arenaEliminations.Add(float64(eliminated))
}

func RecordCommand(kind string, applied bool) {
	RegisterMetrics()
	result := "applied"
	if !applied {
		result = "rejected"
	}
	arenaCommands.WithLabelValues(kind, result).Inc()
}

func ConnectionOpened() {
	RegisterMetrics()
	ingressConnections.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	ingressConnections.Dec()
}

func RecordIngressDrop(reason string) {
	RegisterMetrics()
	ingressDropped.WithLabelValues(reason).Inc()
}

func RecordEgressSend(sink, msgType string, size int, err error) {
	RegisterMetrics()
	if err != nil {
		egressErrors.WithLabelValues(sink).Inc()
		return
	}
	egressSent.WithLabelValues(sink, msgType).Inc()
	egressBytes.Observe(float64(size))
}
