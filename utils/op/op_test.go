package op

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// eval runs the graph of out and returns its value
func eval(t *testing.T, out *G.Node) []float64 {
	t.Helper()
	var v G.Value
	G.Read(out, &v)

	vm := G.NewTapeMachine(out.Graph())
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	switch data := v.Data().(type) {
	case []float64:
		return append([]float64{}, data...)
	case float64:
		return []float64{data}
	}
	t.Fatalf("unexpected value type %T", v.Data())
	return nil
}

func vector(g *G.ExprGraph, name string, data ...float64) *G.Node {
	return G.NewVector(g, tensor.Float64, G.WithShape(len(data)),
		G.WithName(name), G.WithValue(tensor.New(tensor.WithBacking(data))))
}

func TestClip(t *testing.T) {
	g := G.NewGraph()
	x := vector(g, "x", -2, 0.5, 1, 3)
	out, err := Clip(x, 0, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 1}, eval(t, out), 1e-12)
}

func TestMinMax(t *testing.T) {
	g := G.NewGraph()
	a := vector(g, "a", 1, 5, 2)
	b := vector(g, "b", 3, 4, 2)

	min, err := Min(a, b)
	require.NoError(t, err)
	max, err := Max(a, b)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{1, 4, 2}, eval(t, min), 1e-12)
	assert.InDeltaSlice(t, []float64{3, 5, 2}, eval(t, max), 1e-12)
}

func TestLogSoftmax(t *testing.T) {
	g := G.NewGraph()
	logits := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 2),
		G.WithName("logits"), G.WithValue(tensor.New(
			tensor.WithShape(2, 2),
			tensor.WithBacking([]float64{0, 0, 1000, 0}),
		)))

	got := eval(t, LogSoftmax(logits))
	assert.InDelta(t, math.Log(0.5), got[0], 1e-12)
	assert.InDelta(t, math.Log(0.5), got[1], 1e-12)
	assert.InDelta(t, 0, got[2], 1e-12)
	assert.InDelta(t, -1000, got[3], 1e-9)
}

func TestMaskedMean(t *testing.T) {
	g := G.NewGraph()
	x := vector(g, "x", 2, 4, 100)
	w := vector(g, "w", 0.5, 0.5, 0)
	assert.InDeltaSlice(t, []float64{3}, eval(t, MaskedMean(x, w)), 1e-12)
}
