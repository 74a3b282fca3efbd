package lunarlander

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/goppg/timestep"
)

func action(a int) *mat.VecDense {
	return mat.NewVecDense(1, []float64{float64(a)})
}

func newLander(seed uint64) (*LunarLander, ts.TimeStep) {
	return New(NewDefaultLand(1000, seed), 0.99, seed)
}

func TestLunarLanderDeterministic(t *testing.T) {
	l1, first1 := newLander(3)
	l2, first2 := newLander(3)
	require.True(t, first1.First())
	assert.Equal(t, ObservationDims, first1.Observation.Len())
	assert.True(t, mat.Equal(first1.Observation, first2.Observation))

	for i := 0; i < 20; i++ {
		s1, _ := l1.Step(action(i % 4))
		s2, _ := l2.Step(action(i % 4))
		require.True(t, mat.Equal(s1.Observation, s2.Observation))
		require.Equal(t, s1.Reward, s2.Reward)
	}
}

func TestLunarLanderEngines(t *testing.T) {
	step := func(a int) *mat.VecDense {
		l, _ := newLander(5)
		s, _ := l.Step(action(a))
		return s.Observation
	}
	noop, main := step(0), step(2)
	left, right := step(1), step(3)

	// The main engine pushes the lander up, the orientation engines
	// push it sideways
	assert.Greater(t, main.AtVec(3), noop.AtVec(3))
	assert.Greater(t, right.AtVec(2), left.AtVec(2))

	l, _ := newLander(5)
	l.Step(action(2))
	m, s := l.FuelUsed()
	assert.Equal(t, 1.0, m)
	assert.Equal(t, 0.0, s)
}

func TestLunarLanderEpisodeEnds(t *testing.T) {
	l, _ := newLander(7)

	var s ts.TimeStep
	last := false
	for i := 0; i < 1000 && !last; i++ {
		s, last = l.Step(action(0))
		require.False(t, math.IsNaN(s.Reward))
	}
	require.True(t, last)
	if s.TerminalEnd() {
		assert.Contains(t, []float64{CrashReward, RestReward}, s.Reward)
	} else {
		assert.Equal(t, ts.Timeout, s.EndType())
	}

	start := l.Reset()
	assert.True(t, start.First())
	assert.Equal(t, 0, start.Number)
	assert.Equal(t, 0.0, start.Observation.AtVec(6))
}

func TestLunarLanderSpecs(t *testing.T) {
	l, _ := newLander(1)
	n, err := l.ActionSpec().NumActions()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Panics(t, func() { l.Step(action(4)) })
	assert.Panics(t, func() { l.Step(mat.NewVecDense(2, nil)) })
}
