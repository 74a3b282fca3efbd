package ppg

import (
	"github.com/samuelfneumann/goppg/buffer/trajectory"
	"github.com/samuelfneumann/goppg/solver"
	"gonum.org/v1/gonum/mat"
)

// PPOResult holds the quantities computed while evaluating the PPO
// objective on a mini-batch
type PPOResult struct {
	LogProbs []float64 // log π(a | s) of the batch actions, per row
	Entropy  float64   // Mean policy entropy over the batch
	Loss     float64
}

// AuxResult holds the quantities computed while evaluating the
// auxiliary objective on a mini-batch
type AuxResult struct {
	LogDists  *mat.Dense // Current log π(· | s), one row per state
	AuxValues []float64  // Current auxiliary value head outputs
	ValueLoss float64    // Clipped auxiliary value loss
	KL        float64    // KL(π_old || π), part of Loss
	Loss      float64
}

// CriticResult holds the quantities computed while evaluating the
// critic objective on a mini-batch
type CriticResult struct {
	Values []float64
	Loss   float64
}

// PolicyLearner is a categorical policy network with an auxiliary
// value head. Evaluating an objective records its gradient, which is
// added to the accumulated gradient by Backward.
type PolicyLearner interface {
	solver.Optimizable

	// Policy returns the log action distributions and auxiliary values
	// of states without recording a gradient
	Policy(states mat.Matrix) (*mat.Dense, []float64, error)

	// PPO evaluates the clipped surrogate objective with an entropy
	// bonus weighted by entropyCoeff
	PPO(b *trajectory.PolicyBatch, entropyCoeff float64) (PPOResult, error)

	// Aux evaluates the joint auxiliary objective: the clipped value
	// loss of the auxiliary head plus the KL divergence from the
	// collection-time policy
	Aux(b *trajectory.AuxBatch) (AuxResult, error)

	Weights() [][]float64
	SetWeights([][]float64) error
}

// ValueLearner is a state value critic
type ValueLearner interface {
	solver.Optimizable

	// Values returns the value of states without recording a gradient
	Values(states mat.Matrix) ([]float64, error)

	// Regress evaluates the mean squared error between the values of
	// states and the targets
	Regress(states mat.Matrix, targets []float64) (CriticResult, error)

	Weights() [][]float64
	SetWeights([][]float64) error
}

// Rewarder computes intrinsic rewards for the next states of a
// rollout, one per row
type Rewarder interface {
	Rewards(nextStates *mat.Dense) ([]float64, error)
}
