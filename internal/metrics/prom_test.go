package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCollectors(t *testing.T) {
	c := NewCollectors()
	assert.Same(t, c, NewCollectors())

	attempts := counterValue(t, c.RequestAttemptsTotal.WithLabelValues("retry"))
	c.ObserveAttempt("retry")
	assert.Equal(t, attempts+1, counterValue(t, c.RequestAttemptsTotal.WithLabelValues("retry")))

	errs := counterValue(t, c.GenerationsTotal.WithLabelValues("planner", "error"))
	prompt := counterValue(t, c.TokensTotal.WithLabelValues("planner", "prompt"))
	c.ObserveGeneration("planner", errors.New("boom"), time.Second, 40, 2)
	assert.Equal(t, errs+1, counterValue(t, c.GenerationsTotal.WithLabelValues("planner", "error")))
	assert.Equal(t, prompt+40, counterValue(t, c.TokensTotal.WithLabelValues("planner", "prompt")))

	saves := counterValue(t, c.PersistenceErrors.WithLabelValues("save_plan"))
	c.ObservePersistenceError("save_plan")
	assert.Equal(t, saves+1, counterValue(t, c.PersistenceErrors.WithLabelValues("save_plan")))
}

func TestCollectors_NilSafe(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveAttempt("ok")
		c.ObserveGeneration("recipe", nil, time.Millisecond, 1, 1)
		c.ObservePersistenceError("load_plan")
	})
}
