package floatutils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r1"
)

func TestClipInterval(t *testing.T) {
	interval := r1.Interval{Min: -1, Max: 2}
	assert.Equal(t, -1.0, ClipInterval(-3, interval))
	assert.Equal(t, 2.0, ClipInterval(5, interval))
	assert.Equal(t, 0.5, ClipInterval(0.5, interval))
	assert.True(t, math.IsNaN(ClipInterval(math.NaN(), interval)))
}
