package lunarlander

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/goppg/environment"
	ts "github.com/samuelfneumann/goppg/timestep"
)

const (
	CrashReward float64 = -100
	RestReward  float64 = 100
)

// Land is the task of landing gently on the helipad. Rewards are the
// change in a shaping potential that favours being close to the
// helipad, slow, level, and on both legs. Firing an engine costs fuel.
// Episodes end with a reward of -100 when the lander crashes or flies
// off screen, with +100 when it comes to rest, or at a step limit.
type Land struct {
	env.Starter
	stepLimit *env.StepLimit

	lander      *LunarLander
	prevShaping *float64
}

// NewLand returns a new Land task with starting states (x, y, force)
// drawn from s
func NewLand(s env.Starter, cutoff int) *Land {
	return &Land{Starter: s, stepLimit: env.NewStepLimit(cutoff)}
}

// NewDefaultLand returns a Land task that drops the lander from the
// top centre of the screen
func NewDefaultLand(cutoff int, seed uint64) *Land {
	starter := env.NewUniformStarter([]r1.Interval{
		{Min: InitialX, Max: InitialX},
		{Min: InitialY, Max: InitialY},
		{Min: InitialRandom, Max: InitialRandom},
	}, seed)
	return NewLand(starter, cutoff)
}

func (l *Land) bind(lander *LunarLander) { l.lander = lander }

func (l *Land) reset() { l.prevShaping = nil }

// GetReward returns the reward for transitioning to nextState
func (l *Land) GetReward(_, _, nextState mat.Vector) float64 {
	s := func(i int) float64 { return nextState.AtVec(i) }

	shaping := -100*math.Hypot(s(0), s(1)) - 100*math.Hypot(s(2), s(3)) -
		100*math.Abs(s(4)) + 10*s(6) + 10*s(7)

	reward := 0.0
	if l.prevShaping != nil {
		reward = shaping - *l.prevShaping
	}
	l.prevShaping = &shaping

	main, side := l.lander.FuelUsed()
	reward -= main*0.3 + side*0.03

	switch {
	case l.failed(nextState):
		return CrashReward
	case l.lander.Resting():
		return RestReward
	}
	return reward
}

// failed returns whether the hull touched the terrain or the lander
// left the screen
func (l *Land) failed(obs mat.Vector) bool {
	return l.lander.Crashed() || math.Abs(obs.AtVec(0)) >= 1
}

// End ends the episode when the lander crashes, leaves the screen, or
// comes to rest, or at the step limit
func (l *Land) End(t *ts.TimeStep) bool {
	if l.failed(t.Observation) || l.lander.Resting() {
		t.SetEnd(ts.TerminalStateReached)
		return true
	}
	return l.stepLimit.End(t)
}

// RewardSpec returns the reward specification of the task
func (l *Land) RewardSpec() env.Spec {
	return env.NewSpec(mat.NewVecDense(1, nil), env.Reward,
		mat.NewVecDense(1, []float64{math.Inf(-1)}),
		mat.NewVecDense(1, []float64{math.Inf(1)}), env.Continuous)
}
