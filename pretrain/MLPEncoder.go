package pretrain

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppg/network"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// MLPEncoder is an Encoder that maps states to representations with a
// multi-layered perceptron. The weights of the MLPEncoder are fixed at
// construction, so it acts as a random projection of the states.
type MLPEncoder struct {
	net *network.MLP
	vm  G.VM
}

// NewMLPEncoder returns a new MLPEncoder mapping features dimensional
// states to outputs dimensional representations. States are encoded
// batch rows at a time.
func NewMLPEncoder(features, batch, outputs int, hiddenSizes []int,
	biases []bool, activations []*network.Activation,
	init G.InitWFn) (*MLPEncoder, error) {
	net, err := network.NewMLP(features, batch, outputs, G.NewGraph(),
		hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, errors.Wrap(err, "newMLPEncoder")
	}
	return &MLPEncoder{net: net, vm: G.NewTapeMachine(net.Graph())}, nil
}

// Encode implements the Encoder interface
func (m *MLPEncoder) Encode(states mat.Matrix) (*mat.Dense, error) {
	out, err := network.Predict(m.net, m.vm, states)
	if err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	return out, nil
}

// GobEncode implements the gob.GobEncoder interface
func (m *MLPEncoder) GobEncode() ([]byte, error) {
	return m.net.GobEncode()
}

// GobDecode implements the gob.GobDecoder interface
func (m *MLPEncoder) GobDecode(data []byte) error {
	var net network.MLP
	if err := net.GobDecode(data); err != nil {
		return errors.Wrap(err, "gobDecode")
	}
	if m.vm != nil {
		m.vm.Close()
	}
	m.net = &net
	m.vm = G.NewTapeMachine(net.Graph())
	return nil
}
