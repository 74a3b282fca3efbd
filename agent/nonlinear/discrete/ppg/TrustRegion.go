package ppg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ApproxKL returns the batch-mean KL divergence KL(π_old || π) between
// the action distributions recorded at collection time and the
// current ones. Both arguments hold one log distribution per row.
// Entries where π_old has zero probability contribute nothing.
func ApproxKL(logDists, oldLogDists mat.Matrix) float64 {
	rows, cols := oldLogDists.Dims()
	if r, c := logDists.Dims(); r != rows || c != cols {
		panic(fmt.Sprintf("approxKL: shape mismatch (%d, %d) != (%d, %d)",
			r, c, rows, cols))
	}
	if rows == 0 {
		return 0
	}

	kl := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			old := oldLogDists.At(i, j)
			if math.IsInf(old, -1) {
				continue
			}
			kl += math.Exp(old) * (old - logDists.At(i, j))
		}
	}
	return kl / float64(rows)
}

// ApproxKLFromLogProbs returns ApproxKL computed on the log
// probabilities of the actions taken only, treating each as a one-entry
// distribution. This is the divergence available in the policy phase,
// where full collection-time distributions are not sampled.
func ApproxKLFromLogProbs(logProbs, oldLogProbs []float64) float64 {
	if len(logProbs) != len(oldLogProbs) {
		panic(fmt.Sprintf("approxKLFromLogProbs: length mismatch %d != %d",
			len(logProbs), len(oldLogProbs)))
	}
	if len(logProbs) == 0 {
		return 0
	}
	return ApproxKL(mat.NewVecDense(len(logProbs), logProbs),
		mat.NewVecDense(len(oldLogProbs), oldLogProbs))
}

// TrustRegion decides whether an update stays close enough to the
// policy that collected the data. A TrustRegion without a ceiling
// admits every update.
type TrustRegion struct {
	max *float64
}

// NewTrustRegion returns a TrustRegion with KL ceiling max. If max is
// nil, the TrustRegion is disabled.
func NewTrustRegion(max *float64) TrustRegion {
	return TrustRegion{max: max}
}

// Enabled returns whether the TrustRegion has a ceiling
func (t TrustRegion) Enabled() bool {
	return t.max != nil
}

// Admit returns whether an update with divergence kl may be applied.
// A non-finite divergence is never admitted.
func (t TrustRegion) Admit(kl float64) bool {
	if t.max == nil {
		return true
	}
	if math.IsNaN(kl) || math.IsInf(kl, 0) {
		return false
	}
	return kl <= *t.max
}
