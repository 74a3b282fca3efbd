package pretrain

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningStatsMerge(t *testing.T) {
	r := NewRunningStats()
	assert.Equal(t, 0.0, r.Mean())
	assert.Equal(t, 1.0, r.Var())

	r.Update(nil)
	assert.Equal(t, 0, r.Count())

	r.Update([]float64{1, 2, 3, 4})
	assert.Equal(t, 4, r.Count())
	assert.InDelta(t, 2.5, r.Mean(), 1e-12)
	assert.InDelta(t, 5.0/3.0, r.Var(), 1e-12)

	r.Update([]float64{5, 6})
	assert.Equal(t, 6, r.Count())
	assert.InDelta(t, 3.5, r.Mean(), 1e-12)
	assert.InDelta(t, 59.0/18.0, r.Var(), 1e-12)

	assert.InDelta(t, 2.0, r.Normalize(7), 1e-12)
}

func TestRunningStatsSingleSample(t *testing.T) {
	r := NewRunningStats()
	r.Update([]float64{3})
	assert.Equal(t, 3.0, r.Mean())
	assert.Equal(t, 0.0, r.Var())
}

func TestRunningStatsGob(t *testing.T) {
	r := NewRunningStats()
	r.Update([]float64{1, 5, 9})

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(r))

	var decoded RunningStats
	require.NoError(t, gob.NewDecoder(&buf).Decode(&decoded))
	assert.Equal(t, *r, decoded)
}
