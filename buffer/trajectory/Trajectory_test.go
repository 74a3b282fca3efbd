package trajectory

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const (
	obsDim     = 2
	numActions = 3
)

// fill appends steps vectorised steps to b. The observation of slot
// env at timestep t is [env, t], which makes every step traceable.
func fill(b *Buffer, steps int, done func(env, t int) bool) {
	n := b.NumEnvs()
	for t := 0; t < steps; t++ {
		states := mat.NewDense(n, obsDim, nil)
		next := mat.NewDense(n, obsDim, nil)
		logDists := mat.NewDense(n, numActions, nil)
		values := make([]float64, n)
		actions := make([]int, n)
		dones := make([]bool, n)
		logProbs := make([]float64, n)
		aux := make([]float64, n)

		for env := 0; env < n; env++ {
			states.SetRow(env, []float64{float64(env), float64(t)})
			next.SetRow(env, []float64{float64(env), float64(t + 1)})
			logDists.SetRow(env, []float64{float64(env), float64(t), -1})
			values[env] = float64(10*env + t)
			actions[env] = (env + t) % numActions
			dones[env] = done != nil && done(env, t)
			logProbs[env] = -float64(env + t)
			aux[env] = float64(100*env + t)
		}
		b.AppendStep(states, next, values, actions, dones, logProbs, aux,
			logDists)
	}
}

func TestLengthInvariant(t *testing.T) {
	b := New(1, obsDim, numActions)
	fill(b, 7, nil)

	require.Equal(t, 7, b.Len())
	require.Equal(t, 7, b.Pending())

	b.AppendRewards([]float64{1, 2, 3, 4, 5, 6, 7})
	assert.Equal(t, 0, b.Pending())
	assert.Len(t, b.Rewards(), 7)
	assert.Equal(t, 7, b.NextStates().RawMatrix().Rows)
}

func TestAppendRewardsMismatchPanics(t *testing.T) {
	b := New(2, obsDim, numActions)
	fill(b, 3, nil)

	assert.Panics(t, func() { b.AppendRewards([]float64{1, 2, 3}) })
	assert.Panics(t, func() { b.AppendRewards(make([]float64, 7)) })
}

func TestAppendRewardsInTwoPasses(t *testing.T) {
	b := New(2, obsDim, numActions)
	fill(b, 2, nil)
	b.AppendRewards([]float64{1, 2, 3, 4})

	fill(b, 1, nil)
	assert.Equal(t, 2, b.Pending())
	b.AppendRewards([]float64{5, 6})

	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, b.Rewards())
	assert.Equal(t, 5.0, b.At(0, 2).Reward)
	assert.Equal(t, 6.0, b.At(1, 2).Reward)
}

func TestAppendStepMisalignedPanics(t *testing.T) {
	b := New(2, obsDim, numActions)
	states := mat.NewDense(2, obsDim, nil)
	logDists := mat.NewDense(2, numActions, nil)
	assert.Panics(t, func() {
		b.AppendStep(states, states, []float64{0}, []int{0, 0},
			[]bool{false, false}, []float64{0, 0}, []float64{0, 0}, logDists)
	})
	assert.Panics(t, func() {
		b.AppendStep(states, mat.NewDense(3, obsDim, nil), []float64{0, 0},
			[]int{0, 0}, []bool{false, false}, []float64{0, 0},
			[]float64{0, 0}, logDists)
	})
}

func TestSlotsKeepAlignment(t *testing.T) {
	b := New(3, obsDim, numActions)
	fill(b, 4, nil)

	for env := 0; env < 3; env++ {
		for ts := 0; ts < 4; ts++ {
			step := b.At(env, ts)
			assert.Equal(t, []float64{float64(env), float64(ts)},
				step.State.RawVector().Data)
			assert.Equal(t, float64(10*env+ts), step.Value)
			assert.Equal(t, float64(100*env+ts), step.AuxValue)
			assert.Equal(t, []float64{float64(env), float64(ts), -1},
				step.LogDist)
		}
	}
}

func TestCalcAdvantagesPerEnvironment(t *testing.T) {
	b := New(2, obsDim, numActions)
	fill(b, 3, func(env, t int) bool { return env == 0 && t == 1 })
	b.AppendRewards([]float64{1, 1, 1, 1, 1, 1})

	require.Panics(t, func() { b.CalcAdvantages(0.9, 0.8, []float64{0}) })
	b.CalcAdvantages(0.9, 0.8, []float64{0.5, -0.5})
	require.True(t, b.Computed())

	for env := 0; env < 2; env++ {
		for ts := 0; ts < 3; ts++ {
			step := b.At(env, ts)
			assert.Equal(t, step.Advantage+step.Value, step.Return)
		}
	}

	// Slot 0 ends an episode at t = 1, so the last step of slot 0 is the
	// only one that uses slot 0's bootstrap value.
	last0 := b.At(0, 2)
	assert.InDelta(t, 1+0.9*0.5-last0.Value, last0.Advantage, 1e-12)
	done0 := b.At(0, 1)
	assert.InDelta(t, 1-done0.Value, done0.Advantage, 1e-12)

	last1 := b.At(1, 2)
	assert.InDelta(t, 1+0.9*-0.5-last1.Value, last1.Advantage, 1e-12)
}

func TestCalcAdvantagesRequiresRewards(t *testing.T) {
	b := New(1, obsDim, numActions)
	fill(b, 2, nil)
	assert.Panics(t, func() { b.CalcAdvantages(0.9, 0.9, []float64{0}) })
}

func TestBootstrapStates(t *testing.T) {
	b := New(2, obsDim, numActions)
	fill(b, 3, nil)

	states := b.BootstrapStates()
	assert.Equal(t, []float64{0, 3}, states.RawRowView(0))
	assert.Equal(t, []float64{1, 3}, states.RawRowView(1))
}

func TestBatchesVisitEveryStepOnce(t *testing.T) {
	b := New(4, obsDim, numActions)
	fill(b, 25, nil)
	b.AppendRewards(make([]float64, 100))
	b.CalcAdvantages(0.99, 0.95, make([]float64, 4))

	it := b.Batches(32, rand.New(rand.NewSource(1)))
	require.Equal(t, 4, it.NumBatches())

	var sizes []int
	var seen []string
	for it.Next() {
		batch, ok := it.Batch().(*PolicyBatch)
		require.True(t, ok)
		sizes = append(sizes, batch.Size())
		assert.Equal(t, it.Index() == 3, it.Last())

		for i := 0; i < batch.Size(); i++ {
			row := batch.States.RawRowView(i)
			env, ts := int(row[0]), int(row[1])
			seen = append(seen, key(env, ts))

			// The batch must carry the statistics stored with the state
			step := b.At(env, ts)
			assert.Equal(t, step.Action, batch.Actions[i])
			assert.Equal(t, step.LogProb, batch.LogProbs[i])
			assert.Equal(t, step.Return, batch.Returns[i])
			assert.Equal(t, step.Advantage, batch.Advantages[i])
		}
	}

	assert.Equal(t, []int{32, 32, 32, 4}, sizes)
	assert.False(t, it.Next())

	var want []string
	for env := 0; env < 4; env++ {
		for ts := 0; ts < 25; ts++ {
			want = append(want, key(env, ts))
		}
	}
	sort.Strings(want)
	sort.Strings(seen)
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("batches visited the wrong steps (-want +got):\n%s", diff)
	}
}

func TestBatchesAuxMode(t *testing.T) {
	b := New(2, obsDim, numActions)
	fill(b, 3, nil)
	b.AppendRewards(make([]float64, 6))
	b.CalcAdvantages(0.99, 0.95, make([]float64, 2))

	b.SetAuxEpoch(true)
	it := b.Batches(4, rand.New(rand.NewSource(2)))
	b.SetAuxEpoch(false)

	count := 0
	for it.Next() {
		batch, ok := it.Batch().(*AuxBatch)
		require.True(t, ok)
		for i := 0; i < batch.Size(); i++ {
			row := batch.States.RawRowView(i)
			step := b.At(int(row[0]), int(row[1]))
			assert.Equal(t, step.AuxValue, batch.AuxValues[i])
			assert.Equal(t, step.LogDist, batch.LogDists.RawRowView(i))
			count++
		}
	}
	assert.Equal(t, 6, count)

	// Restartable
	it.Reset()
	assert.True(t, it.Next())
	assert.Equal(t, 0, it.Index())
}

func TestBatchesRequireAdvantages(t *testing.T) {
	b := New(1, obsDim, numActions)
	fill(b, 2, nil)
	assert.Panics(t, func() { b.Batches(2, rand.New(rand.NewSource(0))) })
}

func key(env, t int) string {
	return string(rune('a'+env)) + string(rune('A'+t))
}
