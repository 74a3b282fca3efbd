package ppg

import (
	"math"
	"testing"

	"github.com/samuelfneumann/goppg/buffer/trajectory"
	"github.com/samuelfneumann/goppg/network"
	"github.com/samuelfneumann/goppg/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	s, err := solver.NewVanilla(0.1)
	require.NoError(t, err)

	a, err := NewActor(2, 3, 2, 4, []int{8}, []bool{true},
		[]*network.Activation{network.TanH()}, G.GlorotU(1), s, 0.2, 0.2,
		1, 1)
	require.NoError(t, err)
	return a
}

// entropy returns the entropy of a categorical distribution given its
// log probabilities
func entropy(logDist []float64) float64 {
	h := 0.0
	for _, logProb := range logDist {
		if !math.IsInf(logProb, -1) {
			h -= math.Exp(logProb) * logProb
		}
	}
	return h
}

var graphStates = mat.NewDense(3, 2, []float64{
	0.1, -0.2,
	0.5, 0.3,
	-0.4, 0.9,
})

func TestActorPolicy(t *testing.T) {
	a := newTestActor(t)

	logDists, aux, err := a.Policy(graphStates)
	require.NoError(t, err)
	r, c := logDists.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 3, c)
	assert.Len(t, aux, 3)

	for i := 0; i < r; i++ {
		total := 0.0
		for _, l := range logDists.RawRowView(i) {
			total += math.Exp(l)
		}
		assert.InDelta(t, 1, total, 1e-9)
	}
}

func TestActorPPO(t *testing.T) {
	a := newTestActor(t)
	logDists, _, err := a.Policy(graphStates)
	require.NoError(t, err)

	actions := []int{0, 2, 1}
	old := make([]float64, len(actions))
	for i, action := range actions {
		old[i] = logDists.At(i, action)
	}
	batch := &trajectory.PolicyBatch{
		States:     graphStates,
		Actions:    actions,
		Returns:    []float64{1, 1, 1},
		LogProbs:   old,
		Advantages: []float64{1, -1, 0.5},
	}

	res, err := a.PPO(batch, 0.01)
	require.NoError(t, err)

	// Both graphs share the master parameters, so an unchanged policy
	// has a ratio of 1 and no divergence
	assert.InDeltaSlice(t, old, res.LogProbs, 1e-9)
	assert.InDelta(t, 0, ApproxKLFromLogProbs(res.LogProbs, old), 1e-9)
	assert.Greater(t, res.Entropy, 0.0)
	assert.LessOrEqual(t, res.Entropy, math.Log(3)+1e-9)

	// Padding rows do not count towards the mean entropy
	want := 0.0
	for i := 0; i < len(actions); i++ {
		want += entropy(logDists.RawRowView(i))
	}
	assert.InDelta(t, want/float64(len(actions)), res.Entropy, 1e-9)

	before := a.Weights()
	_, err = solver.NewDirect(nil).Update(a, 0, 1)
	require.NoError(t, err)
	assert.NotEqual(t, before, a.Weights())

	after, _, err := a.Policy(graphStates)
	require.NoError(t, err)
	assert.False(t, mat.EqualApprox(logDists, after, 1e-12))
}

func TestActorBackwardRequiresObjective(t *testing.T) {
	a := newTestActor(t)
	assert.Error(t, a.Backward())
}

func TestActorAux(t *testing.T) {
	a := newTestActor(t)
	logDists, aux, err := a.Policy(graphStates)
	require.NoError(t, err)

	batch := &trajectory.AuxBatch{
		States:    graphStates,
		Returns:   []float64{1, 0, -1},
		LogDists:  logDists,
		AuxValues: aux,
	}
	res, err := a.Aux(batch)
	require.NoError(t, err)

	assert.InDelta(t, 0, res.KL, 1e-9)
	assert.InDelta(t, ApproxKL(res.LogDists, logDists), res.KL, 1e-9)
	assert.InDeltaSlice(t, aux, res.AuxValues, 1e-9)
	assert.InDelta(t, res.ValueLoss+res.KL, res.Loss, 1e-9)

	// A different collection-time policy gives the same divergence in
	// and out of the graph
	shifted := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		shifted.SetRow(i, []float64{math.Log(0.2), math.Log(0.3),
			math.Log(0.5)})
	}
	batch.LogDists = shifted
	res, err = a.Aux(batch)
	require.NoError(t, err)
	assert.InDelta(t, ApproxKL(res.LogDists, shifted), res.KL, 1e-9)
	assert.Greater(t, res.KL, 0.0)
}

func TestActorBatchTooLarge(t *testing.T) {
	a := newTestActor(t)
	states := mat.NewDense(5, 2, nil)
	_, err := a.PPO(&trajectory.PolicyBatch{
		States:     states,
		Actions:    make([]int, 5),
		Returns:    make([]float64, 5),
		LogProbs:   make([]float64, 5),
		Advantages: make([]float64, 5),
	}, 0)
	assert.Error(t, err)
}

func TestActorWeights(t *testing.T) {
	a, b := newTestActor(t), newTestActor(t)
	require.NoError(t, b.SetWeights(a.Weights()))

	want, _, err := a.Policy(graphStates)
	require.NoError(t, err)
	got, _, err := b.Policy(graphStates)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}

func TestCriticRegress(t *testing.T) {
	s, err := solver.NewVanilla(0.05)
	require.NoError(t, err)
	c, err := NewCritic(2, 2, 4, nil, nil, nil, G.Zeroes(), s)
	require.NoError(t, err)

	values, err := c.Values(graphStates)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, values)

	targets := []float64{1, 2, -1}
	stepper := solver.NewDirect(nil)
	first := 0.0
	for i := 0; i < 50; i++ {
		res, err := c.Regress(graphStates, targets)
		require.NoError(t, err)
		require.Len(t, res.Values, 3)
		if i == 0 {
			first = res.Loss
			assert.InDelta(t, (1.0+4+1)/3, first, 1e-9)
		}
		_, err = stepper.Update(c, 0, 1)
		require.NoError(t, err)
	}

	values, err = c.Values(graphStates)
	require.NoError(t, err)
	res, err := c.Regress(graphStates, targets)
	require.NoError(t, err)
	assert.Less(t, res.Loss, first)
	assert.InDeltaSlice(t, values, res.Values, 1e-9)

	_, err = c.Regress(graphStates, []float64{1})
	assert.Error(t, err)
}

func TestMaskWeights(t *testing.T) {
	w := maskWeights(3, 4)
	assert.InDelta(t, 1, floats.Sum(w), 1e-12)
	assert.Equal(t, 0.0, w[3])
}
