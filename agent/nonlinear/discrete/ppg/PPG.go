// Package ppg implements the Phasic Policy Gradient algorithm with a
// categorical policy.
//
// Training alternates between a policy phase, which optimizes the PPO
// clipped surrogate objective and regresses the critic on each
// rollout, and an auxiliary phase, run every few rollouts, which
// distills value information into an auxiliary head of the policy
// network while a KL penalty keeps the policy in place. Both phases are
// guarded by a KL trust region that skips updates moving the policy too
// far from the one that collected the data.
package ppg

import (
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppg/agent"
	"github.com/samuelfneumann/goppg/agent/nonlinear/discrete/policy"
	"github.com/samuelfneumann/goppg/buffer/trajectory"
	"github.com/samuelfneumann/goppg/experiment/checkpointer"
	"github.com/samuelfneumann/goppg/experiment/metrics"
	"github.com/samuelfneumann/goppg/solver"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// auxWarnThreshold is the auxiliary loss above which training is
// likely diverging
const auxWarnThreshold = 100.0

// PPG implements the Phasic Policy Gradient algorithm. It acts in a
// number of parallel environments, collects a rollout of transitions,
// and trains on the rollout once it is complete.
type PPG struct {
	policy   PolicyLearner
	critic   ValueLearner
	rewarder Rewarder // Intrinsic rewards, nil to use environment rewards

	buffer     *trajectory.Buffer
	numEnvs    int
	features   int
	numActions int
	rng        *rand.Rand

	gamma, lambda       float64
	entropyCoeff        float64
	entropyDecay        float64
	entropyMin          float64
	normalizeAdvantages bool
	batchSize           int
	rolloutLength       int
	trainIterations     int
	auxIterations       int
	auxFreq             int

	// rollouts counts the policy phases completed since the last
	// auxiliary phase
	rollouts int

	ppoStepper    solver.Stepper
	auxStepper    solver.Stepper
	criticStepper solver.Stepper
	ppoRegion     TrustRegion
	auxRegion     TrustRegion

	sink         metrics.Sink
	checkpointer checkpointer.Checkpointer
}

// New creates and returns a new PPG agent training actor and critic
// with the hyperparameters of c. The agent acts on features
// dimensional states with numActions actions. If rewarder is not nil,
// environment rewards are ignored and each rollout is rewarded by
// rewarder instead.
func New(actor PolicyLearner, critic ValueLearner, rewarder Rewarder,
	c Config, features, numActions int, seed uint64) (*PPG, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}

	auxStepper, err := solver.NewAccumulated(c.BatchSize, c.TargetBatchSize,
		c.GradNormPPG)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	return &PPG{
		policy:   actor,
		critic:   critic,
		rewarder: rewarder,

		buffer:     trajectory.New(c.NumEnvs, features, numActions),
		numEnvs:    c.NumEnvs,
		features:   features,
		numActions: numActions,
		rng:        rand.New(rand.NewSource(seed)),

		gamma:               c.DiscountFactor,
		lambda:              c.GAELambda,
		entropyCoeff:        c.EntropyCoeff,
		entropyDecay:        c.EntropyDecay,
		entropyMin:          c.EntropyMin,
		normalizeAdvantages: c.NormalizeAdvantages,
		batchSize:           c.BatchSize,
		rolloutLength:       c.RolloutLength,
		trainIterations:     c.TrainIterations,
		auxIterations:       c.AuxIterations,
		auxFreq:             c.AuxFreq,

		ppoStepper:    solver.NewDirect(c.GradNorm),
		auxStepper:    auxStepper,
		criticStepper: solver.NewDirect(c.GradNorm),
		ppoRegion:     NewTrustRegion(c.KLMax),
		auxRegion:     NewTrustRegion(c.KLMaxAux),

		sink: metrics.Discard,
	}, nil
}

// SetSink sets the sink that training metrics are recorded in
func (p *PPG) SetSink(sink metrics.Sink) {
	if sink == nil {
		sink = metrics.Discard
	}
	p.sink = sink
	if s, ok := p.rewarder.(interface{ SetSink(metrics.Sink) }); ok {
		s.SetSink(sink)
	}
}

// SetCheckpointer sets the Checkpointer called at the end of each
// call to Learn
func (p *PPG) SetCheckpointer(c checkpointer.Checkpointer) {
	p.checkpointer = c
}

// EntropyCoeff returns the current entropy coefficient
func (p *PPG) EntropyCoeff() float64 { return p.entropyCoeff }

// Rollouts returns the number of policy phases completed since the
// last auxiliary phase
func (p *PPG) Rollouts() int { return p.rollouts }

// Act samples an action in each of the argument states, one state per
// environment
func (p *PPG) Act(states *mat.Dense) (agent.Sample, error) {
	logDists, auxValues, err := p.policy.Policy(states)
	if err != nil {
		return agent.Sample{}, errors.Wrap(err, "act")
	}
	values, err := p.critic.Values(states)
	if err != nil {
		return agent.Sample{}, errors.Wrap(err, "act")
	}

	actions, logProbs := policy.SampleRows(logDists, p.rng)
	return agent.Sample{
		Actions:   actions,
		LogProbs:  logProbs,
		Values:    values,
		AuxValues: auxValues,
		LogDists:  logDists,
	}, nil
}

// Observe records one vectorised environment step in the rollout
func (p *PPG) Observe(states, nextStates *mat.Dense, s agent.Sample,
	rewards []float64, dones []bool) {
	p.buffer.AppendStep(states, nextStates, s.Values, s.Actions, dones,
		s.LogProbs, s.AuxValues, s.LogDists)
	if p.rewarder == nil {
		p.buffer.AppendRewards(rewards)
	}
}

// Ready returns whether the rollout is complete
func (p *PPG) Ready() bool {
	return p.buffer.Len() >= p.rolloutLength
}

// Learn trains on the collected rollout: a policy phase, then an
// auxiliary phase if enough policy phases have passed since the last
// one. The rollout is discarded afterwards and the agent is
// checkpointed.
func (p *PPG) Learn(totalSteps int) error {
	if p.buffer.Len() == 0 {
		return errors.New("learn: no transitions to learn from")
	}

	if p.rewarder != nil {
		rewards, err := p.rewarder.Rewards(p.buffer.NextStates())
		if err != nil {
			return errors.Wrap(err, "learn: could not compute rewards")
		}
		p.buffer.AppendRewards(rewards)
	}

	bootstrap, err := p.critic.Values(p.buffer.BootstrapStates())
	if err != nil {
		return errors.Wrap(err, "learn: could not bootstrap")
	}
	p.buffer.CalcAdvantages(p.gamma, p.lambda, bootstrap)

	if err := p.ppoPhase(); err != nil {
		return errors.Wrap(err, "learn")
	}

	p.rollouts++
	if p.rollouts >= p.auxFreq {
		if err := p.auxPhase(); err != nil {
			return errors.Wrap(err, "learn")
		}
		p.rollouts = 0
	}

	p.entropyCoeff = math.Max(p.entropyCoeff*p.entropyDecay, p.entropyMin)

	p.sink.Record("steps_done", float64(totalSteps))
	p.sink.Record("entropy_coeff", p.entropyCoeff)
	p.sink.Record("rollouts", float64(p.rollouts))
	p.sink.Flush()

	p.forget()

	if p.checkpointer != nil {
		if err := p.checkpointer.Checkpoint(); err != nil {
			return errors.Wrap(err, "learn: could not checkpoint")
		}
	}
	return nil
}

// ppoPhase runs the policy phase: for each mini-batch of each epoch, a
// PPO update followed by a critic update
func (p *PPG) ppoPhase() error {
	p.buffer.SetAuxEpoch(false)
	it := p.buffer.Batches(p.batchSize, p.rng)

	for epoch := 0; epoch < p.trainIterations; epoch++ {
		if epoch > 0 {
			it.Reset()
		}
		for it.Next() {
			batch := it.Batch().(*trajectory.PolicyBatch)
			if err := p.ppoUpdate(batch, it.Index(), it.NumBatches()); err != nil {
				return errors.Wrap(err, "ppoPhase")
			}
			if err := p.criticUpdate(batch.States, batch.Returns); err != nil {
				return errors.Wrap(err, "ppoPhase")
			}
		}
	}
	return nil
}

// auxPhase runs the auxiliary phase: for each mini-batch of each
// epoch, an auxiliary update followed by a critic update. The first
// accumulated step sees only auxiliary gradients.
func (p *PPG) auxPhase() error {
	p.policy.ZeroGrad()
	p.buffer.SetAuxEpoch(true)
	defer p.buffer.SetAuxEpoch(false)
	it := p.buffer.Batches(p.batchSize, p.rng)

	warned := false
	for epoch := 0; epoch < p.auxIterations; epoch++ {
		if epoch > 0 {
			it.Reset()
		}
		for it.Next() {
			batch := it.Batch().(*trajectory.AuxBatch)
			loss, err := p.auxUpdate(batch, it.Index(), it.NumBatches())
			if err != nil {
				return errors.Wrap(err, "auxPhase")
			}
			if loss > auxWarnThreshold && !warned {
				fmt.Fprintf(os.Stderr, "Warning: auxiliary loss %v exceeds %v, "+
					"consider lowering val_coeff\n", loss, auxWarnThreshold)
				warned = true
			}
			if err := p.criticUpdate(batch.States, batch.Returns); err != nil {
				return errors.Wrap(err, "auxPhase")
			}
		}
	}
	return nil
}

// ppoUpdate evaluates the PPO objective on batch, which is mini-batch
// index of numBatches in the epoch, and applies it unless the policy
// has left the trust region
func (p *PPG) ppoUpdate(batch *trajectory.PolicyBatch, index,
	numBatches int) error {
	if p.normalizeAdvantages {
		batch.Advantages = normalize(batch.Advantages)
	}

	res, err := p.policy.PPO(batch, p.entropyCoeff)
	if err != nil {
		return errors.Wrap(err, "ppoUpdate")
	}
	kl := ApproxKLFromLogProbs(res.LogProbs, batch.LogProbs)

	p.sink.Record("entropy", res.Entropy)
	p.sink.Record("kl_div", kl)
	p.sink.Record("ppo_loss", res.Loss)

	if !p.ppoRegion.Admit(kl) {
		p.ppoStepper.Skip(p.policy, index, numBatches)
		p.sink.Record("kl_exceeded", 1)
		return nil
	}
	if p.ppoRegion.Enabled() {
		p.sink.Record("kl_exceeded", 0)
	}

	if _, err := p.ppoStepper.Update(p.policy, index, numBatches); err != nil {
		return errors.Wrap(err, "ppoUpdate")
	}
	return nil
}

// auxUpdate evaluates the auxiliary objective on batch and applies it
// unless the policy has left the auxiliary trust region. It returns
// the auxiliary loss.
func (p *PPG) auxUpdate(batch *trajectory.AuxBatch, index,
	numBatches int) (float64, error) {
	res, err := p.policy.Aux(batch)
	if err != nil {
		return 0, errors.Wrap(err, "auxUpdate")
	}

	p.sink.Record("aux_loss", res.Loss)
	p.sink.Record("aux_value_loss", res.ValueLoss)
	p.sink.Record("aux_kl_div", res.KL)
	p.sink.Record("aux_state_value", stat.Mean(res.AuxValues, nil))

	if !p.auxRegion.Admit(res.KL) {
		p.auxStepper.Skip(p.policy, index, numBatches)
		p.sink.Record("kl_exceeded", 1)
		return res.Loss, nil
	}
	if p.auxRegion.Enabled() {
		p.sink.Record("kl_exceeded", 0)
	}

	if _, err := p.auxStepper.Update(p.policy, index, numBatches); err != nil {
		return 0, errors.Wrap(err, "auxUpdate")
	}
	return res.Loss, nil
}

// criticUpdate regresses the critic onto the returns of a mini-batch
func (p *PPG) criticUpdate(states *mat.Dense, returns []float64) error {
	res, err := p.critic.Regress(states, returns)
	if err != nil {
		return errors.Wrap(err, "criticUpdate")
	}
	if _, err := p.criticStepper.Update(p.critic, 0, 1); err != nil {
		return errors.Wrap(err, "criticUpdate")
	}

	p.sink.Record("critic_loss", res.Loss)
	p.sink.Record("critic_state_value", stat.Mean(res.Values, nil))
	return nil
}

// forget discards the collected rollout
func (p *PPG) forget() {
	p.buffer = trajectory.New(p.numEnvs, p.features, p.numActions)
}

// normalize returns (x - mean(x)) / (std(x) + 1e-8). If the standard
// deviation is undefined, as for a single element, x is only centred.
func normalize(x []float64) []float64 {
	mean, std := stat.MeanStdDev(x, nil)
	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(std) {
			out[i] = v - mean
		} else {
			out[i] = (v - mean) / (std + 1e-8)
		}
	}
	return out
}

// GobEncode implements the gob.GobEncoder interface. The weights of
// the policy and critic, the entropy coefficient, the rollout counter,
// and the state of the rewarder are saved.
func (p *PPG) GobEncode() ([]byte, error) {
	rewarder := []byte{}
	if s, ok := p.rewarder.(checkpointer.Serializable); ok {
		var err error
		if rewarder, err = s.GobEncode(); err != nil {
			return nil, errors.Wrap(err, "gobEncode")
		}
	}

	data, err := checkpointer.Encode(p.policy.Weights(), p.critic.Weights(),
		p.entropyCoeff, p.rollouts, rewarder)
	if err != nil {
		return nil, errors.Wrap(err, "gobEncode")
	}
	return data, nil
}

// GobDecode implements the gob.GobDecoder interface. The PPG must have
// been created from a Config with the same architecture as the one
// that was saved. The entropy coefficient is restored from the saved
// state, so a resumed agent continues its entropy schedule even if its
// Config changed.
func (p *PPG) GobDecode(data []byte) error {
	var policyWeights, criticWeights [][]float64
	var entropyCoeff float64
	var rollouts int
	var rewarder []byte
	if err := checkpointer.Decode(data, &policyWeights, &criticWeights,
		&entropyCoeff, &rollouts, &rewarder); err != nil {
		return errors.Wrap(err, "gobDecode")
	}

	if err := p.policy.SetWeights(policyWeights); err != nil {
		return errors.Wrap(err, "gobDecode: could not restore policy")
	}
	if err := p.critic.SetWeights(criticWeights); err != nil {
		return errors.Wrap(err, "gobDecode: could not restore critic")
	}
	if s, ok := p.rewarder.(checkpointer.Serializable); ok && len(rewarder) > 0 {
		if err := s.GobDecode(rewarder); err != nil {
			return errors.Wrap(err, "gobDecode: could not restore rewarder")
		}
	}

	p.entropyCoeff = entropyCoeff
	p.rollouts = rollouts
	return nil
}
