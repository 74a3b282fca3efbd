package solver

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Optimizable is a set of learnable parameters together with an
// accumulated gradient and the solver that applies it.
type Optimizable interface {
	// Backward adds the gradient of the most recently evaluated
	// objective to the accumulated gradient
	Backward() error

	// ZeroGrad clears the accumulated gradient
	ZeroGrad()

	// Grads returns the accumulated gradient, one slice per
	// parameter. The slices alias the accumulator.
	Grads() [][]float64

	// Step applies the accumulated gradient to the parameters
	Step() error
}

// Stepper implements a discipline for turning per mini-batch
// gradients into parameter updates.
type Stepper interface {
	// Update handles mini-batch index batch of numBatches in the
	// current epoch, whose objective has just been evaluated on o. It
	// returns whether the parameters of o were changed.
	Update(o Optimizable, batch, numBatches int) (bool, error)

	// Skip handles a mini-batch whose update must not be applied, for
	// example because it would leave the trust region.
	Skip(o Optimizable, batch, numBatches int)
}

// ClipGradNorm rescales the accumulated gradient of o so that its
// global L2 norm is at most maxNorm. It returns the norm before
// clipping.
func ClipGradNorm(o Optimizable, maxNorm float64) float64 {
	grads := o.Grads()

	total := 0.0
	for _, g := range grads {
		total += floats.Dot(g, g)
	}
	total = math.Sqrt(total)

	coeff := maxNorm / (total + 1e-6)
	if coeff < 1 {
		for _, g := range grads {
			floats.Scale(coeff, g)
		}
	}
	return total
}

// Direct takes one solver step per mini-batch: clear the gradient,
// backpropagate, clip, step. The gradient is cleared again after the
// step so that nothing carries over to another Stepper.
type Direct struct {
	maxNorm *float64
}

// NewDirect returns a new Direct Stepper. If maxNorm is nil, gradients
// are not clipped.
func NewDirect(maxNorm *float64) *Direct {
	return &Direct{maxNorm: maxNorm}
}

// Update implements the Stepper interface
func (d *Direct) Update(o Optimizable, _, _ int) (bool, error) {
	o.ZeroGrad()
	if err := o.Backward(); err != nil {
		return false, errors.Wrap(err, "update: could not backpropagate")
	}
	if d.maxNorm != nil {
		ClipGradNorm(o, *d.maxNorm)
	}
	if err := o.Step(); err != nil {
		return false, errors.Wrap(err, "update: could not step")
	}
	o.ZeroGrad()
	return true, nil
}

// Skip implements the Stepper interface
func (d *Direct) Skip(o Optimizable, _, _ int) {
	o.ZeroGrad()
}

// Accumulated accumulates gradients over several mini-batches and
// takes a solver step once enough mini-batches have been seen to make
// up the target batch size, or when the epoch's last mini-batch is
// reached. This decouples the effective batch size of an update from
// the size of the sampled mini-batches.
type Accumulated struct {
	accumulate int
	maxNorm    *float64
}

// NewAccumulated returns a new Accumulated Stepper that steps every
// ⌈targetBatchSize / batchSize⌉ mini-batches. If maxNorm is nil,
// gradients are not clipped.
func NewAccumulated(batchSize, targetBatchSize int,
	maxNorm *float64) (*Accumulated, error) {
	if batchSize < 1 || targetBatchSize < 1 {
		return nil, errors.Errorf("newAccumulated: batch sizes must be "+
			"positive \n\thave(%d, %d)", batchSize, targetBatchSize)
	}

	accumulate := (targetBatchSize + batchSize - 1) / batchSize
	return &Accumulated{accumulate: accumulate, maxNorm: maxNorm}, nil
}

// Accumulate returns the number of mini-batches accumulated per step
func (a *Accumulated) Accumulate() int { return a.accumulate }

// flush returns whether the step is taken at mini-batch index batch.
// Both conditions may hold at once, which still results in a single
// step.
func (a *Accumulated) flush(batch, numBatches int) bool {
	return (batch+1)%a.accumulate == 0 || batch == numBatches-1
}

// Update implements the Stepper interface
func (a *Accumulated) Update(o Optimizable, batch, numBatches int) (bool,
	error) {
	if err := o.Backward(); err != nil {
		return false, errors.Wrap(err, "update: could not backpropagate")
	}
	if !a.flush(batch, numBatches) {
		return false, nil
	}

	if a.maxNorm != nil {
		ClipGradNorm(o, *a.maxNorm)
	}
	if err := o.Step(); err != nil {
		return false, errors.Wrap(err, "update: could not step")
	}
	o.ZeroGrad()
	return true, nil
}

// Skip implements the Stepper interface. The skipped mini-batch's
// gradient is not accumulated. If the skipped mini-batch is the one
// that would have triggered a step, the step is dropped together with
// the gradient accumulated for it.
func (a *Accumulated) Skip(o Optimizable, batch, numBatches int) {
	if a.flush(batch, numBatches) {
		o.ZeroGrad()
	}
}
