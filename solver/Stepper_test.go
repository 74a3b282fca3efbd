package solver

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeParams is a single parameter vector updated by plain gradient
// descent with unit step size. Each call to Backward adds grad.
type fakeParams struct {
	weights []float64
	grad    []float64
	accum   []float64

	backwards int
	steps     []int // Number of Backward calls seen at each step
}

func newFakeParams(grad ...float64) *fakeParams {
	return &fakeParams{
		weights: make([]float64, len(grad)),
		grad:    grad,
		accum:   make([]float64, len(grad)),
	}
}

func (f *fakeParams) Backward() error {
	for i := range f.accum {
		f.accum[i] += f.grad[i]
	}
	f.backwards++
	return nil
}

func (f *fakeParams) ZeroGrad() {
	for i := range f.accum {
		f.accum[i] = 0
	}
}

func (f *fakeParams) Grads() [][]float64 { return [][]float64{f.accum} }

func (f *fakeParams) Step() error {
	for i := range f.weights {
		f.weights[i] -= f.accum[i]
	}
	f.steps = append(f.steps, f.backwards)
	return nil
}

func float(f float64) *float64 { return &f }

func TestAccumulatedFlushesOnLastBatch(t *testing.T) {
	// 100 samples, batch size 32 => 4 mini-batches, the last with 4
	// samples. A target of 128 needs 4 mini-batches, so the only step
	// happens at index 3.
	const numBatches = 4
	s, err := NewAccumulated(32, 128, nil)
	require.NoError(t, err)
	require.Equal(t, 4, s.Accumulate())

	p := newFakeParams(1, 2)
	var stepped []int
	for i := 0; i < numBatches; i++ {
		ok, err := s.Update(p, i, numBatches)
		require.NoError(t, err)
		if ok {
			stepped = append(stepped, i)
		}
	}

	assert.Equal(t, []int{3}, stepped)
	assert.Equal(t, []float64{-4, -8}, p.weights)
	assert.Equal(t, []float64{0, 0}, p.accum)
}

func TestAccumulatedFlushesPartialGroup(t *testing.T) {
	// A target that does not divide the number of mini-batches still
	// flushes the final partial group, exactly once per index.
	const numBatches = 5
	s, err := NewAccumulated(32, 64, nil)
	require.NoError(t, err)

	p := newFakeParams(1)
	var stepped []int
	for i := 0; i < numBatches; i++ {
		ok, err := s.Update(p, i, numBatches)
		require.NoError(t, err)
		if ok {
			stepped = append(stepped, i)
		}
	}

	assert.Equal(t, []int{1, 3, 4}, stepped)
	assert.Equal(t, []int{2, 4, 5}, p.steps)
	assert.Equal(t, []float64{-5}, p.weights)
}

func TestAccumulatedCoincidingConditionsStepOnce(t *testing.T) {
	s, err := NewAccumulated(10, 20, nil)
	require.NoError(t, err)

	p := newFakeParams(1)
	for i := 0; i < 4; i++ {
		_, err := s.Update(p, i, 4)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{2, 4}, p.steps)
}

func TestAccumulatedTargetSmallerThanBatch(t *testing.T) {
	s, err := NewAccumulated(64, 32, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Accumulate())

	_, err = NewAccumulated(0, 32, nil)
	assert.Error(t, err)
}

func TestAccumulatedSkip(t *testing.T) {
	s, err := NewAccumulated(32, 64, nil)
	require.NoError(t, err)
	p := newFakeParams(1)

	// Skipping a non-flushing batch keeps earlier gradients
	_, err = s.Update(p, 0, 4)
	require.NoError(t, err)
	s.Skip(p, 0, 4)
	assert.Equal(t, []float64{1}, p.accum)

	// Skipping the flushing batch drops the pending step. Gradients of
	// earlier batches in the group are dropped with it, even though
	// they passed the trust region, so a step never mixes gradients
	// from two accumulation groups.
	s.Skip(p, 1, 4)
	assert.Empty(t, p.steps)
	assert.Equal(t, []float64{0}, p.accum)
	assert.Equal(t, []float64{0}, p.weights)
}

func TestDirectStepsEveryBatch(t *testing.T) {
	s := NewDirect(nil)
	p := newFakeParams(3)

	for i := 0; i < 3; i++ {
		ok, err := s.Update(p, i, 3)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, []float64{-9}, p.weights)

	s.Skip(p, 0, 3)
	assert.Equal(t, []float64{-9}, p.weights)
}

func TestDirectLeavesNoGradientBehind(t *testing.T) {
	direct := NewDirect(nil)
	p := newFakeParams(1)
	_, err := direct.Update(p, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, p.accum)

	// An accumulated step that follows applies its own gradient only
	acc, err := NewAccumulated(32, 32, nil)
	require.NoError(t, err)
	p.grad = []float64{10}
	ok, err := acc.Update(p, 0, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{-11}, p.weights)
}

func TestDirectClipsGradient(t *testing.T) {
	s := NewDirect(float(1))
	p := newFakeParams(3, 4)

	_, err := s.Update(p, 0, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-0.6, -0.8}, p.weights, 1e-6)
}

func TestClipGradNorm(t *testing.T) {
	p := newFakeParams(3, 4)
	require.NoError(t, p.Backward())

	norm := ClipGradNorm(p, 10)
	assert.Equal(t, 5.0, norm)
	assert.Equal(t, []float64{3, 4}, p.accum)

	norm = ClipGradNorm(p, 2.5)
	assert.Equal(t, 5.0, norm)
	assert.InDelta(t, 2.5, math.Hypot(p.accum[0], p.accum[1]), 1e-6)
}

func TestSolverJSON(t *testing.T) {
	adam, err := NewAdam(1e-3, 1e-8, 0.9, 0.999)
	require.NoError(t, err)

	data, err := json.Marshal(adam)
	require.NoError(t, err)

	var decoded Solver
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Adam, decoded.Type)
	assert.Equal(t, adam.Config, decoded.Config)
	assert.NotNil(t, decoded.Solver)

	clone := decoded.Clone()
	assert.Equal(t, decoded.Config, clone.Config)

	assert.Error(t, json.Unmarshal([]byte(`{"Type":"SGDM","Config":{}}`),
		&decoded))
}
