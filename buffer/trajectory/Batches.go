package trajectory

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Batch is a mini-batch drawn from a Buffer. Its concrete type is
// *PolicyBatch or *AuxBatch, depending on whether the Buffer was in
// auxiliary mode when the Iterator was created.
type Batch interface {
	Size() int
	Observations() *mat.Dense
}

// PolicyBatch is a mini-batch used in the policy phase
type PolicyBatch struct {
	States     *mat.Dense
	Actions    []int
	Returns    []float64
	LogProbs   []float64 // Log probabilities at collection time
	Advantages []float64
}

// Size returns the number of steps in the batch
func (p *PolicyBatch) Size() int { return len(p.Actions) }

// Observations returns the states of the batch, one row per step
func (p *PolicyBatch) Observations() *mat.Dense { return p.States }

// AuxBatch is a mini-batch used in the auxiliary phase
type AuxBatch struct {
	States    *mat.Dense
	Returns   []float64
	LogDists  *mat.Dense // Log action distributions at collection time
	AuxValues []float64  // Auxiliary value head at collection time
}

// Size returns the number of steps in the batch
func (a *AuxBatch) Size() int { return len(a.Returns) }

// Observations returns the states of the batch, one row per step
func (a *AuxBatch) Observations() *mat.Dense { return a.States }

// Iterator lazily serves shuffled mini-batches of a Buffer. Each
// epoch visits every stored step exactly once; the final mini-batch of
// an epoch holds the remainder and may be smaller than the batch size.
//
// Iterators are restartable: Reset reshuffles and starts a new epoch.
type Iterator struct {
	buffer    *Buffer
	batchSize int
	aux       bool
	rng       *rand.Rand

	order   []int
	current int // Index of the batch returned by the last call to Next
	batch   Batch
}

// Batches returns an Iterator over shuffled mini-batches of size
// batchSize. The Buffer must have its advantages computed.
func (b *Buffer) Batches(batchSize int, rng *rand.Rand) *Iterator {
	if batchSize < 1 {
		panic(fmt.Sprintf("batches: batch size must be positive, have(%d)",
			batchSize))
	}
	if !b.computed {
		panic("batches: advantages have not been computed")
	}

	it := &Iterator{
		buffer:    b,
		batchSize: batchSize,
		aux:       b.auxEpoch,
		rng:       rng,
	}
	it.Reset()
	return it
}

// Reset reshuffles the Buffer and restarts iteration from the first
// mini-batch
func (it *Iterator) Reset() {
	it.order = make([]int, it.buffer.Len())
	for i := range it.order {
		it.order[i] = i
	}
	it.rng.Shuffle(len(it.order), func(i, j int) {
		it.order[i], it.order[j] = it.order[j], it.order[i]
	})
	it.current = -1
	it.batch = nil
}

// NumBatches returns the number of mini-batches in one epoch
func (it *Iterator) NumBatches() int {
	return (len(it.order) + it.batchSize - 1) / it.batchSize
}

// Index returns the index of the current mini-batch within the epoch
func (it *Iterator) Index() int { return it.current }

// Last returns whether the current mini-batch is the last in the epoch
func (it *Iterator) Last() bool { return it.current == it.NumBatches()-1 }

// Next advances the Iterator, returning false when the epoch is done
func (it *Iterator) Next() bool {
	if it.current+1 >= it.NumBatches() {
		it.batch = nil
		return false
	}
	it.current++

	start := it.current * it.batchSize
	stop := start + it.batchSize
	if stop > len(it.order) {
		stop = len(it.order)
	}
	rows := it.order[start:stop]

	if it.aux {
		it.batch = it.auxBatch(rows)
	} else {
		it.batch = it.policyBatch(rows)
	}
	return true
}

// Batch returns the current mini-batch
func (it *Iterator) Batch() Batch { return it.batch }

func (it *Iterator) policyBatch(rows []int) *PolicyBatch {
	b := it.buffer
	batch := &PolicyBatch{
		States:     mat.NewDense(len(rows), b.obsDim, nil),
		Actions:    make([]int, len(rows)),
		Returns:    make([]float64, len(rows)),
		LogProbs:   make([]float64, len(rows)),
		Advantages: make([]float64, len(rows)),
	}
	for i, row := range rows {
		env, t := b.index(row)
		step := &b.slots[env][t]

		batch.States.SetRow(i, step.State.RawVector().Data)
		batch.Actions[i] = step.Action
		batch.Returns[i] = step.Return
		batch.LogProbs[i] = step.LogProb
		batch.Advantages[i] = step.Advantage
	}
	return batch
}

func (it *Iterator) auxBatch(rows []int) *AuxBatch {
	b := it.buffer
	batch := &AuxBatch{
		States:    mat.NewDense(len(rows), b.obsDim, nil),
		Returns:   make([]float64, len(rows)),
		LogDists:  mat.NewDense(len(rows), b.numActions, nil),
		AuxValues: make([]float64, len(rows)),
	}
	for i, row := range rows {
		env, t := b.index(row)
		step := &b.slots[env][t]

		batch.States.SetRow(i, step.State.RawVector().Data)
		batch.Returns[i] = step.Return
		batch.LogDists.SetRow(i, step.LogDist)
		batch.AuxValues[i] = step.AuxValue
	}
	return batch
}
