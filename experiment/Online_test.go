package experiment

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppg/agent"
	"github.com/samuelfneumann/goppg/environment/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// fakeAgent always takes action 0 and learns every rolloutSteps calls
// to Observe
type fakeAgent struct {
	rolloutSteps int
	observed     int
	learned      []int
	err          error
}

func (f *fakeAgent) Act(states *mat.Dense) (agent.Sample, error) {
	r, _ := states.Dims()
	return agent.Sample{Actions: make([]int, r)}, nil
}

func (f *fakeAgent) Observe(_, _ *mat.Dense, _ agent.Sample, _ []float64,
	_ []bool) {
	f.observed++
}

func (f *fakeAgent) Ready() bool { return f.observed >= f.rolloutSteps }

func (f *fakeAgent) Learn(totalSteps int) error {
	if f.err != nil {
		return f.err
	}
	f.observed = 0
	f.learned = append(f.learned, totalSteps)
	return nil
}

func newCartpole(t *testing.T, numEnvs int) envconfig.Config {
	t.Helper()
	return envconfig.Config{
		Environment:   envconfig.Cartpole,
		Task:          envconfig.Balance,
		EpisodeCutoff: 3,
		Discount:      0.99,
		NumEnvs:       numEnvs,
	}
}

func TestOnlineRun(t *testing.T) {
	env, err := newCartpole(t, 2).Create(1)
	require.NoError(t, err)
	a := &fakeAgent{rolloutSteps: 2}

	exp := NewOnline(env, a, 10)
	require.NoError(t, exp.Run())

	assert.Equal(t, 10, exp.Steps())
	assert.Equal(t, []int{4, 8}, a.learned)
	assert.Equal(t, 2, exp.Metrics().Flushes())

	lengths := exp.Metrics().Values("episode_length")
	require.NotEmpty(t, lengths)
	for _, l := range lengths {
		assert.LessOrEqual(t, l, 3.0)
	}
	assert.Len(t, exp.Metrics().Values("episode_return"), len(lengths))
}

func TestOnlineLearnError(t *testing.T) {
	env, err := newCartpole(t, 1).Create(1)
	require.NoError(t, err)
	a := &fakeAgent{rolloutSteps: 1, err: errors.New("diverged")}

	err = NewOnline(env, a, 10).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diverged")
}
