package maze

import (
	"testing"

	"github.com/samuelfneumann/gomaze"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/goppg/timestep"
)

func action(a int) *mat.VecDense {
	return mat.NewVecDense(1, []float64{float64(a)})
}

func TestMazeReachesGoal(t *testing.T) {
	// A single row of two cells is always carved into one corridor
	m, first, err := New(NewSolve(10), 1, 2, gomaze.NewBacktracking(1), 0.9)
	require.NoError(t, err)
	assert.True(t, first.First())
	assert.Equal(t, []float64{0, 0}, first.Observation.RawVector().Data)
	assert.Equal(t, []float64{1, 0}, m.Goal().RawVector().Data)

	step, last := m.Step(action(2))
	assert.False(t, last)
	assert.Equal(t, StepReward, step.Reward)
	assert.Equal(t, []float64{0, 0}, step.Observation.RawVector().Data)

	step, last = m.Step(action(3))
	assert.True(t, last)
	assert.True(t, step.TerminalEnd())
	assert.Equal(t, GoalReward, step.Reward)
	assert.Equal(t, 2, step.Number)

	start := m.Reset()
	assert.True(t, mat.Equal(m.Start(), start.Observation))
}

func TestMazeStepLimit(t *testing.T) {
	m, _, err := New(NewSolve(3), 4, 4, gomaze.NewBacktracking(2), 1)
	require.NoError(t, err)

	// Moving north from the top row never reaches the goal
	var step ts.TimeStep
	last := false
	for i := 0; i < 3; i++ {
		step, last = m.Step(action(0))
	}
	assert.True(t, last)
	assert.Equal(t, ts.Timeout, step.EndType())
}

func TestMazeSpecs(t *testing.T) {
	m, _, err := New(NewSolve(3), 3, 5, gomaze.NewIterative(3), 1)
	require.NoError(t, err)

	n, err := m.ActionSpec().NumActions()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []float64{4, 2},
		mat.VecDenseCopyOf(m.ObservationSpec().UpperBound).RawVector().Data)
	assert.Panics(t, func() { m.Step(action(4)) })

	_, _, err = New(NewSolve(3), 0, 5, gomaze.NewIterative(3), 1)
	assert.Error(t, err)
}
