package maze

import (
	"github.com/samuelfneumann/gomaze"
	"gonum.org/v1/gonum/mat"

	env "github.com/samuelfneumann/goppg/environment"
	ts "github.com/samuelfneumann/goppg/timestep"
)

const (
	StepReward float64 = -1.0
	GoalReward float64 = 0.0
)

// Solve is the task of reaching the goal cell of a maze. Every step
// that does not reach the goal is rewarded with -1. Episodes end at
// the goal or at a step limit.
type Solve struct {
	stepLimit *env.StepLimit
	start     *mat.VecDense
	goal      *mat.VecDense
}

// NewSolve returns a new Solve task that cuts episodes off after
// cutoff steps
func NewSolve(cutoff int) *Solve {
	return &Solve{stepLimit: env.NewStepLimit(cutoff)}
}

// bind records the start and goal cells of m in (column, row) order
func (s *Solve) bind(m *gomaze.Maze) {
	row, col := m.Start()
	s.start = mat.NewVecDense(2, []float64{float64(col), float64(row)})

	row, col = m.Goal()
	s.goal = mat.NewVecDense(2, []float64{float64(col), float64(row)})
}

// Start returns the starting cell
func (s *Solve) Start() *mat.VecDense {
	return mat.VecDenseCopyOf(s.start)
}

// Goal returns the goal cell
func (s *Solve) Goal() *mat.VecDense {
	return mat.VecDenseCopyOf(s.goal)
}

// AtGoal returns whether obs is the goal cell
func (s *Solve) AtGoal(obs mat.Vector) bool {
	return mat.Equal(obs, s.goal)
}

// GetReward returns the reward for moving into nextState
func (s *Solve) GetReward(_, _, nextState mat.Vector) float64 {
	if s.AtGoal(nextState) {
		return GoalReward
	}
	return StepReward
}

// End ends the episode at the goal or at the step limit
func (s *Solve) End(t *ts.TimeStep) bool {
	if s.AtGoal(t.Observation) {
		t.SetEnd(ts.TerminalStateReached)
		return true
	}
	return s.stepLimit.End(t)
}

// RewardSpec returns the reward specification of the task
func (s *Solve) RewardSpec() env.Spec {
	return env.NewSpec(mat.NewVecDense(1, nil), env.Reward,
		mat.NewVecDense(1, []float64{StepReward}),
		mat.NewVecDense(1, []float64{GoalReward}), env.Continuous)
}
