package cartpole

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/goppg/environment"
	ts "github.com/samuelfneumann/goppg/timestep"
)

const (
	FailAngle float64 = 12 * 2 * math.Pi / 360
)

// Balance implements the classic control Cartpole Balance task. In this
// Task, the goal of the agent is to balance the pole on the cart in
// an upright position for as long as possible.
//
// The reward is +1 for every timestep on which the pole is within the
// fail angle θ of upright, and 0 otherwise.
//
// Episodes end after a step limit, after the pole has fallen below
// the fail angle, or when the cart hits a wall.
type Balance struct {
	env.Starter
	stepLimiter     *env.StepLimit
	angleLimiter    *env.IntervalLimit
	positionLimiter *env.IntervalLimit
	failAngle       float64
}

// NewBalance creates and returns a new Balance task
func NewBalance(s env.Starter, episodeSteps int, failAngle float64) *Balance {
	angleLimiter := env.NewIntervalLimit(
		[]r1.Interval{{Min: -failAngle, Max: failAngle}},
		[]int{2},
		ts.TerminalStateReached,
	)

	// Positions are clipped to the bounds, so an episode ends once the
	// cart reaches them
	positionLimiter := env.NewIntervalLimit(
		[]r1.Interval{{Min: -PositionBounds + 1e-9, Max: PositionBounds - 1e-9}},
		[]int{0},
		ts.TerminalStateReached,
	)

	return &Balance{
		Starter:         s,
		stepLimiter:     env.NewStepLimit(episodeSteps),
		angleLimiter:    angleLimiter,
		positionLimiter: positionLimiter,
		failAngle:       failAngle,
	}
}

// NewDefaultBalance returns a Balance task with starting states drawn
// uniformly from [-0.05, 0.05] in each feature
func NewDefaultBalance(episodeSteps int, seed uint64) *Balance {
	bounds := make([]r1.Interval, ObservationDims)
	for i := range bounds {
		bounds[i] = r1.Interval{Min: -0.05, Max: 0.05}
	}
	starter := env.NewUniformStarter(bounds, seed)

	return NewBalance(starter, episodeSteps, FailAngle)
}

// End checks if a TimeStep is the last in an episode. If so, it adjusts
// the TimeStep's StepType to timestep.Last and returns true. Otherwise,
// the function does not adjust the TimeStep and returns false.
func (b *Balance) End(t *ts.TimeStep) bool {
	if end := b.angleLimiter.End(t); end {
		return true
	}
	if end := b.positionLimiter.End(t); end {
		return true
	}
	return b.stepLimiter.End(t)
}

// GetReward returns the reward for an action taken in some state,
// resulting in a transition to the next state nextState.
func (b *Balance) GetReward(_, _, nextState mat.Vector) float64 {
	angle := math.Abs(nextState.AtVec(2))

	// Angle of 0 is pointing straight up
	if angle < b.failAngle {
		return 1.0
	}
	return 0.0
}

// RewardSpec returns the reward specification for the environment
func (b *Balance) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{0})
	upperBound := mat.NewVecDense(1, []float64{1})

	return env.NewSpec(shape, env.Reward, lowerBound, upperBound,
		env.Continuous)
}
