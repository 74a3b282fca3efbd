// Package network implements feed forward neural networks as Gorgonia
// computational graphs.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network built on a Gorgonia computational
// graph. A NeuralNet has a fixed batch size: inputs are always
// matrices of BatchSize() rows.
type NeuralNet interface {
	Graph() *G.ExprGraph
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the input of the network to a row-major matrix of
	// BatchSize() × Features() values
	SetInput([]float64) error

	// Set copies the weights of another NeuralNet of the same
	// architecture into the NeuralNet
	Set(NeuralNet) error

	Learnables() G.Nodes

	// Weights returns a copy of the learnable weights, one slice per
	// learnable node, in the order of Learnables()
	Weights() [][]float64
	SetWeights([][]float64) error

	Output() G.Value
	Prediction() *G.Node
}
