package gae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestEstimateFourStepEpisode(t *testing.T) {
	rewards := []float64{1, 1, 1, 1}
	values := []float64{0, 0, 0, 0}
	dones := []bool{false, false, false, true}
	gamma, lambda := 0.99, 0.95

	adv, ret := Estimate(rewards, values, dones, 0, gamma, lambda)

	// Independent evaluation in the same floating point order
	a3 := 1.0
	a2 := 1 + gamma*lambda*1*a3
	a1 := 1 + gamma*lambda*1*a2
	a0 := 1 + gamma*lambda*1*a1
	want := []float64{a0, a1, a2, a3}

	assert.Equal(t, want, adv)
	assert.Equal(t, want, ret)
	assert.InDelta(t, 3.656950355125, ret[0], 1e-12)
}

func TestEstimateReturnIsAdvantagePlusValue(t *testing.T) {
	rewards := []float64{0.5, -1, 2, 0, 3, 1}
	values := []float64{0.1, 0.7, -0.3, 1.2, 0.4, -2}
	dones := []bool{false, true, false, false, true, false}

	adv, ret := Estimate(rewards, values, dones, 1.5, 0.97, 0.9)
	for i := range ret {
		assert.Equal(t, adv[i]+values[i], ret[i], "timestep %d", i)
	}
}

func TestEstimateLambdaOneIsMonteCarlo(t *testing.T) {
	rewards := []float64{1, 0, -2, 3, 0.5}
	values := []float64{0.3, 0.2, -0.4, 1, 2}
	dones := make([]bool, len(rewards))
	bootstrap := 0.8
	gamma := 0.9

	adv, ret := Estimate(rewards, values, dones, bootstrap, gamma, 1.0)

	withBootstrap := append(append([]float64{}, rewards...), bootstrap)
	mc := discountCumSum(mat.NewVecDense(len(withBootstrap), withBootstrap),
		gamma)

	for i := range rewards {
		assert.InDelta(t, mc[i], ret[i], 1e-9, "return at %d", i)
		assert.InDelta(t, mc[i]-values[i], adv[i], 1e-9, "advantage at %d", i)
	}
}

func TestEstimateStopsAtEpisodeBoundary(t *testing.T) {
	gamma, lambda := 0.99, 0.95
	dones := []bool{false, true, false, false}
	values := []float64{0.5, 0.25, 0, 0}

	advA, _ := Estimate([]float64{1, 2, 3, 4}, values, dones, 7, gamma,
		lambda)

	// Change everything after the boundary
	changedValues := []float64{0.5, 0.25, -9, 12}
	advB, _ := Estimate([]float64{1, 2, -30, 40}, changedValues, dones,
		-100, gamma, lambda)

	assert.Equal(t, advA[0], advB[0])
	assert.Equal(t, advA[1], advB[1])
	assert.Equal(t, 2-0.25, advA[1])
}

func TestEstimateMisaligned(t *testing.T) {
	require.Panics(t, func() {
		Estimate([]float64{1, 2}, []float64{1}, []bool{false, false}, 0,
			0.9, 0.9)
	})
}

func TestDiscountCumSum(t *testing.T) {
	x := mat.NewVecDense(3, []float64{1, 2, 3})
	got := discountCumSum(x, 0.5)
	assert.InDeltaSlice(t, []float64{1 + 0.5*2 + 0.25*3, 2 + 0.5*3, 3}, got,
		1e-12)
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of a vector. Given a vector v = [x0 x1 x2 ... xN]
// and discount ℽ, this function computes and returns:
//
//	[
//		x0 + ℽ x1 + ℽ^2 x2 + ℽ^3 x3 + ... + ℽ^N xN
//		x1 + ℽ^1 x2 + ℽ^2 x3 + ... + ℽ^(N-1) xN
//		x2 + ℽ^1 x3 + ... + ℽ^(N-2) xN
//		...
//		xN
//	]
func discountCumSum(x *mat.VecDense, discount float64) []float64 {
	discounts := mat.NewVecDense(x.Len(), nil)
	cumSums := make([]float64, x.Len())
	nextScaledRews := mat.NewVecDense(x.Len(), nil)
	backing := nextScaledRews.RawVector().Data

	for i := 0; i < x.Len(); i++ {
		discounts.ScaleVec(discount, discounts)
		discounts.SetVec(x.Len()-i-1, 1)

		nextScaledRews.MulElemVec(discounts, x)
		cumSums[x.Len()-i-1] = floats.Sum(backing[x.Len()-i-1:])
	}

	return cumSums
}
