// Package pretrain implements the particle based intrinsic reward
// used to pretrain agents without environment rewards.
package pretrain

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppg/experiment/checkpointer"
	"gonum.org/v1/gonum/stat"
)

// RunningStats keeps running estimates of the mean and variance of a
// stream of values that arrive in batches. Batches are merged with
// Chan et al.'s parallel algorithm.
//
// A new RunningStats starts from a mean of 0 and a variance of 1 with
// no samples seen, so the first batch replaces the initial estimates.
type RunningStats struct {
	mean     float64
	variance float64
	count    int
}

// NewRunningStats returns a new RunningStats
func NewRunningStats() *RunningStats {
	return &RunningStats{mean: 0, variance: 1}
}

// Update merges the batch x into the running estimates. The batch
// variance is the unbiased sample variance; a single sample has a
// batch variance of 0.
func (r *RunningStats) Update(x []float64) {
	n := len(x)
	if n == 0 {
		return
	}

	batchMean, batchVar := stat.MeanVariance(x, nil)
	if n == 1 || math.IsNaN(batchVar) {
		batchVar = 0
	}

	total := float64(r.count + n)
	delta := batchMean - r.mean
	count, size := float64(r.count), float64(n)

	r.mean += delta * size / total
	r.variance = (r.variance*count + batchVar*size +
		delta*delta*size*count/total) / total
	r.count += n
}

// Mean returns the running mean
func (r *RunningStats) Mean() float64 { return r.mean }

// Var returns the running variance
func (r *RunningStats) Var() float64 { return r.variance }

// Count returns the number of samples seen
func (r *RunningStats) Count() int { return r.count }

// Normalize scales x by the running mean
func (r *RunningStats) Normalize(x float64) float64 {
	return x / r.mean
}

// GobEncode implements the gob.GobEncoder interface
func (r *RunningStats) GobEncode() ([]byte, error) {
	data, err := checkpointer.Encode(r.mean, r.variance, r.count)
	if err != nil {
		return nil, errors.Wrap(err, "gobEncode")
	}
	return data, nil
}

// GobDecode implements the gob.GobDecoder interface
func (r *RunningStats) GobDecode(data []byte) error {
	if err := checkpointer.Decode(data, &r.mean, &r.variance,
		&r.count); err != nil {
		return errors.Wrap(err, "gobDecode")
	}
	return nil
}
