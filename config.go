package reelguess

import (
	"time"

	"go.uber.org/zap"

	"github.com/reelguess/reelguess/retry"
)

type Option = func(*config)

func WithCapacity(capacity int) Option {
	if capacity < 1 {
		panic("capacity can't be < 1")
	}
	return func(c *config) {
		c.capacity = capacity
	}
}

func WithConcurrency(concurrency int) Option {
	if concurrency < 1 {
		panic("concurrency can't be < 1")
	}
	return func(c *config) {
		c.concurrency = concurrency
	}
}

func WithMaxAttempts(attempts int) Option {
	if attempts < 1 {
		panic("attempts can't be < 1")
	}
	return func(c *config) {
		c.maxAttempts = attempts
	}
}

func WithWaitTimeout(timeout time.Duration) Option {
	if timeout <= 0 {
		panic("wait timeout can't be <= 0")
	}
	return func(c *config) {
		c.waitTimeout = timeout
	}
}

func WithPollInterval(interval time.Duration) Option {
	if interval <= 0 {
		panic("poll interval can't be <= 0")
	}
	return func(c *config) {
		c.pollInterval = interval
	}
}

func WithFillInterval(interval time.Duration) Option {
	if interval <= 0 {
		panic("fill interval can't be <= 0")
	}
	return func(c *config) {
		c.fillInterval = interval
	}
}

func WithBackoff(policy retry.Policy) Option {
	if policy == nil {
		panic("policy can't be nil")
	}
	return func(c *config) {
		c.backoff = policy
	}
}

func WithLogger(logger *zap.Logger) Option {
	if logger == nil {
		panic("logger can't be nil")
	}
	return func(c *config) {
		c.logger = logger
	}
}

func WithPrometheus(pc *PrometheusConfig) Option {
	if pc == nil {
		panic("prometheus config can't be nil")
	}
	return func(c *config) {
		c.metrics = pc.metrics()
	}
}

type config struct {
	capacity     int
	concurrency  int
	maxAttempts  int
	waitTimeout  time.Duration
	pollInterval time.Duration
	fillInterval time.Duration
	backoff      retry.Policy
	logger       *zap.Logger
	metrics      *metrics
}

func newConfig(options ...Option) *config {
	options = append([]Option{
		WithCapacity(4),
		WithConcurrency(2),
		WithMaxAttempts(6),
		WithWaitTimeout(time.Second * 4),
		WithPollInterval(time.Millisecond * 50),
		WithFillInterval(time.Millisecond * 10),
		WithBackoff(retry.NewExponential(time.Millisecond*120, time.Millisecond*1500).
			WithGrowth(1.6).
			WithJitter(time.Millisecond * 80)),
		WithLogger(zap.NewNop()),
		WithPrometheus(Prometheus(nil)),
	}, options...)

	cfg := config{}
	for _, opt := range options {
		opt(&cfg)
	}

	return &cfg
}
