// Package policy implements helpers for categorical policies over
// discrete actions. Policy networks output one logit per action; the
// functions in this package turn rows of logits into log probability
// distributions and sample actions from them.
package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LogSoftmax returns the log of the softmax of logits
func LogSoftmax(logits []float64) []float64 {
	logSumExp := floats.LogSumExp(logits)

	logDist := make([]float64, len(logits))
	for i, logit := range logits {
		logDist[i] = logit - logSumExp
	}
	return logDist
}

// LogSoftmaxRows applies LogSoftmax to each row of a matrix of logits,
// returning a matrix of log probability distributions.
func LogSoftmaxRows(logits mat.Matrix) *mat.Dense {
	r, c := logits.Dims()
	logDists := mat.NewDense(r, c, nil)

	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, logits)
		logDists.SetRow(i, LogSoftmax(row))
	}
	return logDists
}

// Sample draws an action from a categorical distribution given its
// log probabilities, returning the action and its log probability.
func Sample(logDist []float64, src rand.Source) (int, float64) {
	weights := make([]float64, len(logDist))
	for i, logProb := range logDist {
		weights[i] = math.Exp(logProb)
	}

	action := int(distuv.NewCategorical(weights, src).Rand())
	return action, logDist[action]
}

// SampleRows samples one action per row of a matrix of log probability
// distributions.
func SampleRows(logDists *mat.Dense, src rand.Source) (actions []int,
	logProbs []float64) {
	r, _ := logDists.Dims()
	actions = make([]int, r)
	logProbs = make([]float64, r)

	for i := 0; i < r; i++ {
		actions[i], logProbs[i] = Sample(logDists.RawRowView(i), src)
	}
	return actions, logProbs
}

// OneHot returns a row-major matrix of one-hot encoded actions with
// numActions columns. Illegal actions cause a panic.
func OneHot(actions []int, numActions int) []float64 {
	encoded := make([]float64, len(actions)*numActions)
	for i, a := range actions {
		if a < 0 || a >= numActions {
			panic(fmt.Sprintf("oneHot: illegal action %v ∉ [0, %v)", a,
				numActions))
		}
		encoded[i*numActions+a] = 1
	}
	return encoded
}
