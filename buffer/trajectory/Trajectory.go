// Package trajectory implements an on-policy rollout buffer that stores
// the transitions of one rollout across a number of parallel
// environments, computes their advantages, and serves them back as
// shuffled mini-batches.
package trajectory

import (
	"fmt"

	"github.com/samuelfneumann/goppg/buffer/gae"
	"gonum.org/v1/gonum/mat"
)

// Step is a single stored transition. Everything recorded at the
// moment the action was sampled lives in the same record, so a state
// can never be paired with statistics from a different policy version.
type Step struct {
	State     *mat.VecDense
	NextState *mat.VecDense
	Value     float64 // Critic estimate v(State) at collection time
	Action    int
	Done      bool
	LogProb   float64   // log π_old(Action | State)
	AuxValue  float64   // Auxiliary value head output at collection time
	LogDist   []float64 // log π_old(· | State)

	Reward    float64
	Advantage float64
	Return    float64
}

// Buffer stores one rollout. Steps are addressed by (environment slot,
// timestep): slot i holds the sub-trajectory generated by environment
// i in temporal order.
//
// A Buffer is owned by a single goroutine and should be discarded after
// the rollout it holds has been trained on.
type Buffer struct {
	numEnvs    int
	obsDim     int
	numActions int

	slots    [][]Step
	rewarded int // Timesteps per slot that have a reward
	computed bool

	auxEpoch bool
}

// New returns a new, empty Buffer for numEnvs parallel environments
// with obsDim-dimensional observations and numActions discrete actions.
func New(numEnvs, obsDim, numActions int) *Buffer {
	if numEnvs < 1 {
		panic(fmt.Sprintf("new: numEnvs must be positive, have(%d)", numEnvs))
	}
	return &Buffer{
		numEnvs:    numEnvs,
		obsDim:     obsDim,
		numActions: numActions,
		slots:      make([][]Step, numEnvs),
	}
}

// NumEnvs returns the number of environment slots
func (b *Buffer) NumEnvs() int { return b.numEnvs }

// Timesteps returns the number of timesteps stored per environment
// slot
func (b *Buffer) Timesteps() int { return len(b.slots[0]) }

// Len returns the total number of stored steps over all slots
func (b *Buffer) Len() int { return b.numEnvs * b.Timesteps() }

// At returns the step stored for environment slot env at timestep t
func (b *Buffer) At(env, t int) Step { return b.slots[env][t] }

// AppendStep appends one vectorised environment step, one record per
// environment slot. Row i of every matrix argument and element i of
// every slice argument belong to environment slot i.
//
// Misaligned arguments are a programming error and cause a panic.
func (b *Buffer) AppendStep(states, nextStates *mat.Dense, values []float64,
	actions []int, dones []bool, logProbs, auxValues []float64,
	logDists *mat.Dense) {
	b.checkRows("states", states, b.obsDim)
	b.checkRows("nextStates", nextStates, b.obsDim)
	b.checkRows("logDists", logDists, b.numActions)
	b.checkLen("values", len(values))
	b.checkLen("actions", len(actions))
	b.checkLen("dones", len(dones))
	b.checkLen("logProbs", len(logProbs))
	b.checkLen("auxValues", len(auxValues))

	for i := 0; i < b.numEnvs; i++ {
		logDist := make([]float64, b.numActions)
		mat.Row(logDist, i, logDists)

		b.slots[i] = append(b.slots[i], Step{
			State:     mat.VecDenseCopyOf(states.RowView(i)),
			NextState: mat.VecDenseCopyOf(nextStates.RowView(i)),
			Value:     values[i],
			Action:    actions[i],
			Done:      dones[i],
			LogProb:   logProbs[i],
			AuxValue:  auxValues[i],
			LogDist:   logDist,
		})
	}
	b.computed = false
}

// Pending returns the number of steps recorded since the last call to
// AppendRewards
func (b *Buffer) Pending() int {
	return (b.Timesteps() - b.rewarded) * b.numEnvs
}

// AppendRewards fills the rewards of all steps recorded since the last
// call to AppendRewards. Rewards are given in the order the steps were
// appended: timestep-major, and by environment slot within a timestep.
//
// The number of rewards must equal Pending(), otherwise AppendRewards
// panics.
func (b *Buffer) AppendRewards(rewards []float64) {
	if len(rewards) != b.Pending() {
		panic(fmt.Sprintf("appendRewards: misaligned rewards \n\twant(%d)"+
			"\n\thave(%d)", b.Pending(), len(rewards)))
	}

	for i, r := range rewards {
		t := b.rewarded + i/b.numEnvs
		b.slots[i%b.numEnvs][t].Reward = r
	}
	b.rewarded = b.Timesteps()
	b.computed = false
}

// CalcAdvantages computes GAE(λ) advantages and returns for every
// stored step. Each environment slot is processed independently so
// that the recursion never crosses from one environment into another.
// The bootstrap argument holds v(s_T) for each slot, where s_T is the
// next state of the last step stored for that slot.
func (b *Buffer) CalcAdvantages(gamma, lambda float64, bootstrap []float64) {
	if b.Pending() != 0 {
		panic(fmt.Sprintf("calcAdvantages: %d steps have no reward",
			b.Pending()))
	}
	b.checkLen("bootstrap", len(bootstrap))

	for env, slot := range b.slots {
		rewards := make([]float64, len(slot))
		values := make([]float64, len(slot))
		dones := make([]bool, len(slot))
		for t, step := range slot {
			rewards[t] = step.Reward
			values[t] = step.Value
			dones[t] = step.Done
		}

		adv, ret := gae.Estimate(rewards, values, dones, bootstrap[env],
			gamma, lambda)
		for t := range slot {
			slot[t].Advantage = adv[t]
			slot[t].Return = ret[t]
		}
	}
	b.computed = true
}

// Computed returns whether advantages are available for all steps
func (b *Buffer) Computed() bool { return b.computed }

// BootstrapStates returns the next state of the last step stored in
// each environment slot, one row per slot.
func (b *Buffer) BootstrapStates() *mat.Dense {
	last := b.Timesteps() - 1
	if last < 0 {
		panic("bootstrapStates: buffer is empty")
	}
	states := mat.NewDense(b.numEnvs, b.obsDim, nil)
	for env := range b.slots {
		states.SetRow(env, b.slots[env][last].NextState.RawVector().Data)
	}
	return states
}

// NextStates returns the next states of all steps in append order,
// one row per step.
func (b *Buffer) NextStates() *mat.Dense {
	if b.Len() == 0 {
		panic("nextStates: buffer is empty")
	}
	states := mat.NewDense(b.Len(), b.obsDim, nil)
	for row := 0; row < b.Len(); row++ {
		env, t := b.index(row)
		states.SetRow(row, b.slots[env][t].NextState.RawVector().Data)
	}
	return states
}

// Returns returns the returns of all steps in append order
func (b *Buffer) Returns() []float64 {
	return b.collect(func(s *Step) float64 { return s.Return })
}

// Advantages returns the advantages of all steps in append order
func (b *Buffer) Advantages() []float64 {
	return b.collect(func(s *Step) float64 { return s.Advantage })
}

// Rewards returns the rewards of all steps in append order
func (b *Buffer) Rewards() []float64 {
	return b.collect(func(s *Step) float64 { return s.Reward })
}

// SetAuxEpoch sets whether mini-batches are served for the auxiliary
// phase (AuxBatch) or for the policy phase (PolicyBatch).
func (b *Buffer) SetAuxEpoch(aux bool) { b.auxEpoch = aux }

// IsAuxEpoch returns whether the Buffer serves auxiliary mini-batches
func (b *Buffer) IsAuxEpoch() bool { return b.auxEpoch }

func (b *Buffer) collect(f func(*Step) float64) []float64 {
	out := make([]float64, b.Len())
	for row := range out {
		env, t := b.index(row)
		out[row] = f(&b.slots[env][t])
	}
	return out
}

// index converts an append-order row into an (env, timestep) address
func (b *Buffer) index(row int) (env, t int) {
	return row % b.numEnvs, row / b.numEnvs
}

func (b *Buffer) checkLen(name string, n int) {
	if n != b.numEnvs {
		panic(fmt.Sprintf("appendStep: illegal %s length \n\twant(%d)"+
			"\n\thave(%d)", name, b.numEnvs, n))
	}
}

func (b *Buffer) checkRows(name string, m *mat.Dense, cols int) {
	r, c := m.Dims()
	if r != b.numEnvs || c != cols {
		panic(fmt.Sprintf("appendStep: illegal %s shape \n\twant(%d, %d)"+
			"\n\thave(%d, %d)", name, b.numEnvs, cols, r, c))
	}
}
