package wrappers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goppg/environment"
	"github.com/samuelfneumann/goppg/timestep"
)

// counter is an environment whose single feature counts steps. Its
// episodes last length steps and each step is rewarded with the action
// taken.
type counter struct {
	length int
	step   timestep.TimeStep
	resets int
}

func (c *counter) Start() *mat.VecDense { return mat.NewVecDense(1, nil) }

func (c *counter) End(t *timestep.TimeStep) bool {
	if t.Number >= c.length {
		t.SetEnd(timestep.Timeout)
		return true
	}
	return false
}

func (c *counter) GetReward(_, action, _ mat.Vector) float64 {
	return action.AtVec(0)
}

func (c *counter) Reset() timestep.TimeStep {
	c.resets++
	c.step = timestep.New(timestep.First, 0, 1, c.Start(), 0)
	return c.step
}

func (c *counter) Step(a *mat.VecDense) (timestep.TimeStep, bool) {
	n := c.step.Number + 1
	next := timestep.New(timestep.Mid, c.GetReward(nil, a, nil), 1,
		mat.NewVecDense(1, []float64{float64(n)}), n)
	c.End(&next)
	c.step = next
	return next, next.Last()
}

func (c *counter) spec(t environment.SpecType, upper float64,
	card environment.Cardinality) environment.Spec {
	return environment.NewSpec(mat.NewVecDense(1, nil), t,
		mat.NewVecDense(1, []float64{0}), mat.NewVecDense(1, []float64{upper}),
		card)
}

func (c *counter) RewardSpec() environment.Spec {
	return c.spec(environment.Reward, 1, environment.Continuous)
}

func (c *counter) DiscountSpec() environment.Spec {
	return c.spec(environment.Discount, 1, environment.Continuous)
}

func (c *counter) ObservationSpec() environment.Spec {
	return c.spec(environment.Observation, float64(c.length),
		environment.Continuous)
}

func (c *counter) ActionSpec() environment.Spec {
	return c.spec(environment.Action, 1, environment.Discrete)
}

func TestVectorAutoReset(t *testing.T) {
	short, long := &counter{length: 2}, &counter{length: 3}
	v, err := NewVector(short, long)
	require.NoError(t, err)
	require.Equal(t, 2, v.NumEnvs())

	next, rewards, dones := v.Step([]int{1, 0})
	assert.Equal(t, []float64{1, 1}, next.RawMatrix().Data)
	assert.Equal(t, []float64{1, 0}, rewards)
	assert.Equal(t, []bool{false, false}, dones)
	assert.Empty(t, v.Episodes())

	// The short environment ends its episode: next holds its final
	// observation while Observations holds the reset one
	next, _, dones = v.Step([]int{1, 1})
	assert.Equal(t, []float64{2, 2}, next.RawMatrix().Data)
	assert.Equal(t, []bool{true, false}, dones)
	assert.Equal(t, []float64{0, 2}, v.Observations().RawMatrix().Data)
	assert.Equal(t, 2, short.resets)

	episodes := v.Episodes()
	require.Len(t, episodes, 1)
	assert.Equal(t, environment.Episode{Return: 2, Length: 2}, episodes[0])
	assert.Empty(t, v.Episodes())

	_, _, dones = v.Step([]int{0, 1})
	assert.Equal(t, []bool{false, true}, dones)
	assert.Equal(t, []environment.Episode{{Return: 2, Length: 3}},
		v.Episodes())
}

func TestVectorErrors(t *testing.T) {
	_, err := NewVector()
	assert.Error(t, err)

	v, err := NewVector(&counter{length: 2})
	require.NoError(t, err)
	assert.Panics(t, func() { v.Step([]int{0, 0}) })
}
