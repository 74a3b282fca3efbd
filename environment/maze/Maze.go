// Package maze implements grid mazes generated by GoMaze
package maze

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/gomaze"
	"gonum.org/v1/gonum/mat"

	env "github.com/samuelfneumann/goppg/environment"
	ts "github.com/samuelfneumann/goppg/timestep"
)

const (
	ObservationDims int = 2
	ActionDims      int = 1

	// Discrete Actions
	MinDiscreteAction int = 0
	MaxDiscreteAction int = gomaze.Actions - 1
)

// Maze is an environment in which the agent must walk from the top
// left cell of a randomly generated maze to the bottom right cell.
//
// Observations are the (column, row) position of the agent. Actions
// move the agent one cell, unless a wall is in the way:
//
//	Action	Meaning
//	  0		North
//	  1		South
//	  2		West
//	  3		East
//
// Illegal actions will cause the environment to panic.
type Maze struct {
	*Solve
	maze     *gomaze.Maze
	discount float64
	lastStep ts.TimeStep
}

// New returns a new rows ⨉ cols Maze whose walls are carved by init.
// The Solve task is bound to the generated maze.
func New(task *Solve, rows, cols int, init gomaze.Initer,
	discount float64) (*Maze, ts.TimeStep, error) {
	if rows < 1 || cols < 1 {
		return nil, ts.TimeStep{}, errors.Errorf("new: maze must have at "+
			"least one row and column, have(%d, %d)", rows, cols)
	}

	m, err := gomaze.NewMaze(rows, cols, -1, -1, -1, -1, init, false)
	if err != nil {
		return nil, ts.TimeStep{}, errors.Wrap(err, "new: could not "+
			"create maze")
	}
	task.bind(m)

	e := &Maze{Solve: task, maze: m, discount: discount}
	return e, e.Reset(), nil
}

// Reset moves the agent back to the starting cell
func (m *Maze) Reset() ts.TimeStep {
	obs := m.maze.Reset()
	m.lastStep = ts.New(ts.First, 0, m.discount,
		mat.NewVecDense(ObservationDims, obs), 0)
	return m.lastStep
}

// Step moves the agent in the direction given by action a
func (m *Maze) Step(a *mat.VecDense) (ts.TimeStep, bool) {
	if a.Len() != ActionDims {
		panic("step: actions should be 1-dimensional")
	}
	action := int(a.AtVec(0))
	if action < MinDiscreteAction || action > MaxDiscreteAction {
		panic(fmt.Sprintf("step: illegal action %v ∉ [%v, %v]", action,
			MinDiscreteAction, MaxDiscreteAction))
	}

	obs, _, _, err := m.maze.Step(action)
	if err != nil {
		panic(fmt.Sprintf("step: %v", err))
	}
	next := mat.NewVecDense(ObservationDims, obs)

	reward := m.GetReward(m.lastStep.Observation, a, next)
	nextStep := ts.New(ts.Mid, reward, m.discount, next,
		m.lastStep.Number+1)
	m.End(&nextStep)

	m.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// ActionSpec returns the action specification of the environment
func (m *Maze) ActionSpec() env.Spec {
	return env.NewSpec(mat.NewVecDense(ActionDims, nil), env.Action,
		mat.NewVecDense(ActionDims, []float64{float64(MinDiscreteAction)}),
		mat.NewVecDense(ActionDims, []float64{float64(MaxDiscreteAction)}),
		env.Discrete)
}

// ObservationSpec returns the observation specification of the
// environment
func (m *Maze) ObservationSpec() env.Spec {
	upper := []float64{float64(m.maze.Cols() - 1), float64(m.maze.Rows() - 1)}

	return env.NewSpec(mat.NewVecDense(ObservationDims, nil),
		env.Observation, mat.NewVecDense(ObservationDims, nil),
		mat.NewVecDense(ObservationDims, upper), env.Discrete)
}

// DiscountSpec returns the discounting specification of the environment
func (m *Maze) DiscountSpec() env.Spec {
	d := mat.NewVecDense(1, []float64{m.discount})
	return env.NewSpec(mat.NewVecDense(1, nil), env.Discount, d, d,
		env.Continuous)
}

func (m *Maze) String() string {
	return m.maze.String()
}
