package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalCollectors *Collectors
	collectorsOnce   sync.Once
)

// Collectors holds the Prometheus metrics for generation traffic.
type Collectors struct {
	RequestAttemptsTotal *prometheus.CounterVec
	GenerationsTotal     *prometheus.CounterVec
	GenerationDuration   *prometheus.HistogramVec
	TokensTotal          *prometheus.CounterVec
	PersistenceErrors    *prometheus.CounterVec
}

// NewCollectors creates and registers the generation metrics on the default registry.
// Registration happens once per process; later calls return the same collectors.
//
// Metrics:
//   - dinnerplan_request_attempts_total{outcome} - HTTP attempts by outcome (ok, retry, terminal)
//   - dinnerplan_generations_total{agent,outcome} - generation calls by agent
//   - dinnerplan_generation_duration_seconds{agent} - generation latency
//   - dinnerplan_tokens_total{agent,kind} - prompt and completion tokens
//   - dinnerplan_persistence_errors_total{op} - failed document reads and writes
func NewCollectors() *Collectors {
	collectorsOnce.Do(func() {
		globalCollectors = &Collectors{
			RequestAttemptsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dinnerplan_request_attempts_total",
					Help: "Total number of generation API attempts",
				},
				[]string{"outcome"},
			),
			GenerationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dinnerplan_generations_total",
					Help: "Total number of plan and recipe generations",
				},
				[]string{"agent", "outcome"},
			),
			GenerationDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "dinnerplan_generation_duration_seconds",
					Help:    "Duration of generation calls in seconds",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
				},
				[]string{"agent"},
			),
			TokensTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dinnerplan_tokens_total",
					Help: "Total number of tokens consumed",
				},
				[]string{"agent", "kind"},
			),
			PersistenceErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dinnerplan_persistence_errors_total",
					Help: "Total number of failed document store operations",
				},
				[]string{"op"},
			),
		}
	})
	return globalCollectors
}

// ObserveAttempt counts one generation API attempt. Safe on a nil receiver.
func (c *Collectors) ObserveAttempt(outcome string) {
	if c == nil {
		return
	}
	c.RequestAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGeneration records the outcome, latency and token usage of one generation.
func (c *Collectors) ObserveGeneration(agent string, err error, latency time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.GenerationsTotal.WithLabelValues(agent, outcome).Inc()
	c.GenerationDuration.WithLabelValues(agent).Observe(latency.Seconds())
	c.TokensTotal.WithLabelValues(agent, "prompt").Add(float64(promptTokens))
	c.TokensTotal.WithLabelValues(agent, "completion").Add(float64(completionTokens))
}

// ObservePersistenceError counts one failed store operation. Safe on a nil receiver.
func (c *Collectors) ObservePersistenceError(op string) {
	if c == nil {
		return
	}
	c.PersistenceErrors.WithLabelValues(op).Inc()
}
