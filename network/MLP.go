package network

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP implements a multi-layered perceptron with any number of output
// nodes.
type MLP struct {
	g          *G.ExprGraph
	layers     []*fcLayer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	// Data needed for cloning and gobbing
	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes

	prediction *G.Node
	predVal    *G.Value // Shared by copies of the MLP struct
}

// NewMLP creates and returns a new multi-layered perceptron with
// outputs output nodes. The graph parameter g is populated with the
// MLP.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. For
// index i, hiddenSizes[i] is the number of nodes in hidden layer i;
// biases[i] is true if the hidden layer has a bias unit; and
// activations[i] is the activation function of hidden layer i. A final
// linear layer with a bias unit and no activation is always added so
// that the network predicts outputs values per input row. The
// parameter init determines the weight initialization scheme.
func NewMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (*MLP, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, errors.Errorf("newMLP: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, errors.Errorf("newMLP: invalid number of biases"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}
	if features < 1 || batch < 1 || outputs < 1 {
		return nil, errors.Errorf("newMLP: features, batch, and outputs "+
			"must be positive \n\thave(%d, %d, %d)", features, batch, outputs)
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	// Copy so that the caller's slices are never appended to
	sizes := append(append([]int{}, hiddenSizes...), outputs)
	bs := append(append([]bool{}, biases...), true)
	acts := append(append([]*Activation{}, activations...), Identity())

	net := &MLP{
		g:           g,
		layers:      addfcLayers(g, sizes, bs, acts, init, features, ""),
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: append([]int{}, hiddenSizes...),
		biases:      append([]bool{}, biases...),
		activations: append([]*Activation{}, activations...),
	}

	if _, err := net.fwd(input); err != nil {
		return nil, errors.Wrap(err, "newMLP: could not compute forward pass")
	}
	return net, nil
}

// Graph returns the computational graph of the MLP
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// CloneWithBatch returns a copy of the MLP on a new computational graph
// with a new input batch size. The clone starts with the same weights
// as the MLP but does not share them.
func (m *MLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	clone, err := NewMLP(m.numInputs, batchSize, m.numOutputs, G.NewGraph(),
		m.hiddenSizes, m.biases, G.Zeroes(), m.activations)
	if err != nil {
		return nil, errors.Wrap(err, "cloneWithBatch")
	}
	if err := clone.Set(m); err != nil {
		return nil, errors.Wrap(err, "cloneWithBatch")
	}
	return clone, nil
}

// BatchSize returns the number of rows in each input
func (m *MLP) BatchSize() int {
	return m.batchSize
}

// Features returns the number of features in a single input row
func (m *MLP) Features() int {
	return m.numInputs
}

// Outputs returns the number of outputs per input row
func (m *MLP) Outputs() int {
	return m.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass.
func (m *MLP) SetInput(input []float64) error {
	if len(input) != m.numInputs*m.batchSize {
		return errors.Errorf("setInput: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", m.numInputs*m.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(m.input.Shape()...),
	)
	return G.Let(m.input, inputTensor)
}

// Set sets the weights of the MLP to be equal to the weights of another
// NeuralNet with the same architecture. Weights are copied in place,
// so VMs and solvers bound to the MLP see the new values.
func (m *MLP) Set(source NeuralNet) error {
	return m.SetWeights(source.Weights())
}

// Learnables returns the learnable nodes in the MLP
func (m *MLP) Learnables() G.Nodes {
	// Lazy instantiation
	if m.learnables == nil {
		m.learnables = make(G.Nodes, 0, 2*len(m.layers))
		for _, l := range m.layers {
			m.learnables = append(m.learnables, l.weights)
			if l.bias != nil {
				m.learnables = append(m.learnables, l.bias)
			}
		}
	}
	return m.learnables
}

// Weights returns a copy of the learnable weights of the MLP
func (m *MLP) Weights() [][]float64 {
	learnables := m.Learnables()
	weights := make([][]float64, len(learnables))
	for i, node := range learnables {
		data := node.Value().Data().([]float64)
		weights[i] = append([]float64{}, data...)
	}
	return weights
}

// SetWeights copies weights into the learnable nodes of the MLP
func (m *MLP) SetWeights(weights [][]float64) error {
	learnables := m.Learnables()
	if len(weights) != len(learnables) {
		return errors.Errorf("setWeights: invalid number of weights"+
			"\n\twant(%d)\n\thave(%d)", len(learnables), len(weights))
	}

	for i, node := range learnables {
		data := node.Value().Data().([]float64)
		if len(data) != len(weights[i]) {
			return errors.Errorf("setWeights: invalid shape for %v"+
				"\n\twant(%d)\n\thave(%d)", node.Name(), len(data),
				len(weights[i]))
		}
		copy(data, weights[i])
	}
	return nil
}

// fwd performs the forward pass of the MLP on the input node
func (m *MLP) fwd(input *G.Node) (*G.Node, error) {
	pred := input
	var err error
	for i, l := range m.layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, errors.Wrapf(err, "fwd: could not compute forward "+
				"pass of layer %v", i)
		}
	}

	m.prediction = pred
	m.predVal = new(G.Value)
	G.Read(m.prediction, m.predVal)

	return pred, nil
}

// Output returns the output of the MLP after its graph has been run.
// Each of the BatchSize() rows holds Outputs() values.
func (m *MLP) Output() G.Value {
	return *m.predVal
}

// Prediction returns the node of the computational graph that stores
// the output of the MLP
func (m *MLP) Prediction() *G.Node {
	return m.prediction
}

// mlpGob is the gob representation of an MLP
type mlpGob struct {
	Features, Batch, Outputs int
	HiddenSizes              []int
	Biases                   []bool
	Activations              []*Activation
	Weights                  [][]float64
}

// GobEncode implements the gob.GobEncoder interface
func (m *MLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(mlpGob{
		Features:    m.numInputs,
		Batch:       m.batchSize,
		Outputs:     m.numOutputs,
		HiddenSizes: m.hiddenSizes,
		Biases:      m.biases,
		Activations: m.activations,
		Weights:     m.Weights(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "gobEncode")
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The decoded MLP
// lives on a new computational graph.
func (m *MLP) GobDecode(in []byte) error {
	var enc mlpGob
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&enc); err != nil {
		return errors.Wrap(err, "gobDecode")
	}

	net, err := NewMLP(enc.Features, enc.Batch, enc.Outputs, G.NewGraph(),
		enc.HiddenSizes, enc.Biases, G.Zeroes(), enc.Activations)
	if err != nil {
		return errors.Wrap(err, "gobDecode: could not construct MLP")
	}
	if err := net.SetWeights(enc.Weights); err != nil {
		return errors.Wrap(err, "gobDecode")
	}

	*m = *net
	return nil
}
