package network

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Predict runs the forward pass of net on each row of states and
// returns the outputs, one row per state. The vm must run the graph of
// net. States are fed in chunks of net.BatchSize() rows; a final
// partial chunk is padded with zero rows whose outputs are discarded.
func Predict(net NeuralNet, vm G.VM, states mat.Matrix) (*mat.Dense, error) {
	rows, cols := states.Dims()
	if cols != net.Features() {
		return nil, errors.Errorf("predict: invalid number of features"+
			"\n\twant(%d)\n\thave(%d)", net.Features(), cols)
	}

	batch := net.BatchSize()
	out := mat.NewDense(rows, net.Outputs(), nil)
	input := make([]float64, batch*cols)

	for start := 0; start < rows; start += batch {
		n := batch
		if start+n > rows {
			n = rows - start
		}

		for i := range input {
			input[i] = 0
		}
		for i := 0; i < n; i++ {
			mat.Row(input[i*cols:(i+1)*cols], start+i, states)
		}

		if err := net.SetInput(input); err != nil {
			return nil, errors.Wrap(err, "predict")
		}
		if err := vm.RunAll(); err != nil {
			return nil, errors.Wrap(err, "predict: could not run forward pass")
		}

		pred := net.Output().Data().([]float64)
		for i := 0; i < n; i++ {
			out.SetRow(start+i, pred[i*net.Outputs():(i+1)*net.Outputs()])
		}
		vm.Reset()
	}
	return out, nil
}
