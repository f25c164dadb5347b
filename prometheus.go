package reelguess

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusConfig is a config of the Prometheus metrics provided by the buffer.
//
// An instance can be created only by the [Prometheus] function. The zero value is invalid.
type PrometheusConfig struct {
	// Namespace of the metrics.
	Namespace string
	// Subsystem of the metrics.
	Subsystem string
	// Options for the queue length gauge.
	QueueLength prometheus.GaugeOpts
	// Options for the in-flight supplier calls gauge.
	InFlight prometheus.GaugeOpts
	// Options for the queued items counter.
	ItemsQueued prometheus.CounterOpts
	// Options for the served items counter.
	ItemsServed prometheus.CounterOpts
	// Options for the consumer timeouts counter.
	Timeouts prometheus.CounterOpts
	// Options for the supplier errors counter.
	SupplyErrors prometheus.CounterOpts
	// Options for the supplier call duration histogram.
	SupplyDuration prometheus.HistogramOpts

	registerer prometheus.Registerer
}

// Prometheus returns a [PrometheusConfig] with the provided registerer. If registerer is nil,
// metrics will not be registered. Many default parameters can be configured by passing
// configuration functions.
func Prometheus(
	registerer prometheus.Registerer,
	configFuncs ...func(c *PrometheusConfig),
) *PrometheusConfig {
	const (
		namespace = "reelguess"
		subsystem = "buffer"
	)

	c := PrometheusConfig{
		registerer: registerer,
		Namespace:  namespace,
		Subsystem:  subsystem,
		QueueLength: prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_length",
			Help:      "Number of items in the queue",
		},
		InFlight: prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "in_flight",
			Help:      "Number of outstanding supplier calls",
		},
		ItemsQueued: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "items_queued",
			Help:      "Number of items accepted into the queue",
		},
		ItemsServed: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "items_served",
			Help:      "Number of items served to consumers",
		},
		Timeouts: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "timeouts",
			Help:      "Number of consumer waits that ended without an item",
		},
		SupplyErrors: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "supply_errors",
			Help:      "Number of supplier calls that returned an error",
		},
		SupplyDuration: prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "supply_duration_seconds",
			Help:      "Duration of supplier calls",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	}

	for _, cf := range configFuncs {
		if cf != nil {
			cf(&c)
		}
	}

	return &c
}

func (c *PrometheusConfig) metrics() *metrics {
	m := metrics{
		queueLength:    prometheus.NewGauge(c.QueueLength),
		inFlight:       prometheus.NewGauge(c.InFlight),
		itemsQueued:    prometheus.NewCounter(c.ItemsQueued),
		itemsServed:    prometheus.NewCounterVec(c.ItemsServed, []string{"mode"}),
		timeouts:       prometheus.NewCounter(c.Timeouts),
		supplyErrors:   prometheus.NewCounter(c.SupplyErrors),
		supplyDuration: prometheus.NewHistogram(c.SupplyDuration),
	}

	if c.registerer != nil {
		c.registerer.MustRegister(
			m.queueLength,
			m.inFlight,
			m.itemsQueued,
			m.itemsServed,
			m.timeouts,
			m.supplyErrors,
			m.supplyDuration,
		)
	}

	return &m
}

type metrics struct {
	queueLength    prometheus.Gauge
	inFlight       prometheus.Gauge
	itemsQueued    prometheus.Counter
	itemsServed    *prometheus.CounterVec
	timeouts       prometheus.Counter
	supplyErrors   prometheus.Counter
	supplyDuration prometheus.Histogram
}
