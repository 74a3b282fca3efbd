package cartpole

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/goppg/timestep"
)

func TestCartpoleEpisodeEnds(t *testing.T) {
	task := NewDefaultBalance(500, 1)
	c, first := New(task, 0.99)
	require.True(t, first.First())

	n, err := c.ActionSpec().NumActions()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, ObservationDims, c.ObservationSpec().Shape.Len())

	// Always pushing right tips the pole over well before the step limit
	right := mat.NewVecDense(1, []float64{2})
	var step ts.TimeStep
	last := false
	for i := 0; i < 500 && !last; i++ {
		step, last = c.Step(right)
	}
	require.True(t, last)
	assert.Less(t, step.Number, 500)
	assert.True(t, step.TerminalEnd())
	assert.Greater(t, math.Abs(step.Observation.AtVec(2)), FailAngle)
	assert.Equal(t, 0.0, step.Reward)
}

func TestCartpoleStepLimit(t *testing.T) {
	task := NewDefaultBalance(3, 2)
	c, _ := New(task, 1)

	nothing := mat.NewVecDense(1, []float64{1})
	for i := 0; i < 2; i++ {
		step, last := c.Step(nothing)
		require.False(t, last)
		assert.Equal(t, 1.0, step.Reward)
	}
	step, last := c.Step(nothing)
	assert.True(t, last)
	assert.Equal(t, ts.Timeout, step.EndType())

	start := c.Reset()
	assert.True(t, start.First())
	assert.Equal(t, 0, start.Number)
}

func TestCartpoleIllegalAction(t *testing.T) {
	c, _ := New(NewDefaultBalance(10, 3), 1)
	assert.Panics(t, func() { c.Step(mat.NewVecDense(1, []float64{3})) })
}

func TestNormalizeAngle(t *testing.T) {
	bounds := AngleBounds
	c, _ := New(NewDefaultBalance(10, 4), 1)
	assert.InDelta(t, -math.Pi+0.5, normalizeAngle(math.Pi+0.5, c.angles), 1e-12)
	assert.InDelta(t, math.Pi-0.5, normalizeAngle(-math.Pi-0.5, c.angles), 1e-12)
	assert.Equal(t, 0.1, normalizeAngle(0.1, c.angles))
	assert.Equal(t, bounds, normalizeAngle(-math.Pi, c.angles))
}
