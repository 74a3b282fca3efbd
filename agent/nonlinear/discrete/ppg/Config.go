package ppg

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppg/agent"
	"github.com/samuelfneumann/goppg/environment"
	"github.com/samuelfneumann/goppg/initwfn"
	"github.com/samuelfneumann/goppg/network"
	"github.com/samuelfneumann/goppg/pretrain"
	"github.com/samuelfneumann/goppg/solver"
)

func init() {
	// Register the Config type so that it can be typed using
	// agent.TypedConfig to help with serialization/deserialization.
	agent.Register(agent.CategoricalPPGMLP, Config{})
}

// Config implements a configuration for a Phasic Policy Gradient agent
// with a categorical policy. The policy and the critic are
// multi-layered perceptrons; the policy network has one output per
// action for the logits plus one output for the auxiliary value head.
//
// Options that may be disabled are pointers: a nil (JSON null) value
// disables the corresponding trust region or gradient clipping.
type Config struct {
	// Generalized Advantage Estimation
	DiscountFactor float64 `json:"discount_factor"`
	GAELambda      float64 `json:"gae_lambda"`

	// PPO phase
	ClipRatio           float64  `json:"clip_ratio"`
	KLMax               *float64 `json:"kl_max"`
	EntropyCoeff        float64  `json:"entropy_coeff"`
	EntropyDecay        float64  `json:"entropy_decay"`
	EntropyMin          float64  `json:"entropy_min"`
	GradNorm            *float64 `json:"grad_norm"`
	TrainIterations     int      `json:"train_iterations"`
	NormalizeAdvantages bool     `json:"normalize_advantages"`

	// Auxiliary phase
	KLMaxAux        *float64 `json:"kl_max_aux"`
	ValueClip       float64  `json:"value_clip"`
	GradNormPPG     *float64 `json:"grad_norm_ppg"`
	TargetBatchSize int      `json:"target_batch_size"`
	AuxIterations   int      `json:"aux_iterations"`
	AuxFreq         int      `json:"aux_freq"`
	Beta            float64  `json:"beta"`
	ValCoeff        float64  `json:"val_coeff"`

	// Sampling
	BatchSize     int `json:"batch_size"`
	RolloutLength int `json:"rollout_length"`
	NumEnvs       int `json:"num_envs"`

	// Policy neural net
	PolicyLayers      []int                 `json:"policy_layers"`
	PolicyBiases      []bool                `json:"policy_biases"`
	PolicyActivations []*network.Activation `json:"policy_activations"`
	PolicySolver      *solver.Solver        `json:"policy_solver"`

	// State value function neural net
	CriticLayers      []int                 `json:"critic_layers"`
	CriticBiases      []bool                `json:"critic_biases"`
	CriticActivations []*network.Activation `json:"critic_activations"`
	CriticSolver      *solver.Solver        `json:"critic_solver"`

	// Weight init function for all neural nets
	InitWFn *initwfn.InitWFn `json:"init_wfn"`

	// Pretraining with the particle based intrinsic reward. When
	// Pretrain is true, environment rewards are ignored.
	Pretrain           bool                  `json:"is_pretrain"`
	EncoderLayers      []int                 `json:"encoder_layers"`
	EncoderBiases      []bool                `json:"encoder_biases"`
	EncoderActivations []*network.Activation `json:"encoder_activations"`
	RepresentationDim  int                   `json:"representation_dim"`
	TopK               int                   `json:"top_k"`
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	switch {
	case c.DiscountFactor < 0 || c.DiscountFactor > 1:
		return errors.Errorf("validate: discount_factor must be in [0, 1], "+
			"have(%v)", c.DiscountFactor)
	case c.GAELambda < 0 || c.GAELambda > 1:
		return errors.Errorf("validate: gae_lambda must be in [0, 1], "+
			"have(%v)", c.GAELambda)
	case c.ClipRatio <= 0:
		return errors.Errorf("validate: clip_ratio must be positive, "+
			"have(%v)", c.ClipRatio)
	case c.EntropyCoeff < 0 || c.EntropyMin < 0:
		return errors.Errorf("validate: entropy_coeff and entropy_min "+
			"cannot be negative, have(%v, %v)", c.EntropyCoeff, c.EntropyMin)
	case c.EntropyDecay <= 0 || c.EntropyDecay > 1:
		return errors.Errorf("validate: entropy_decay must be in (0, 1], "+
			"have(%v)", c.EntropyDecay)
	case c.ValueClip <= 0:
		return errors.Errorf("validate: value_clip must be positive, "+
			"have(%v)", c.ValueClip)
	case c.Beta < 0 || c.ValCoeff < 0:
		return errors.Errorf("validate: beta and val_coeff cannot be "+
			"negative, have(%v, %v)", c.Beta, c.ValCoeff)
	case c.BatchSize < 1 || c.TargetBatchSize < 1:
		return errors.Errorf("validate: batch_size and target_batch_size "+
			"must be positive, have(%d, %d)", c.BatchSize, c.TargetBatchSize)
	case c.TrainIterations < 1 || c.AuxIterations < 1 || c.AuxFreq < 1:
		return errors.Errorf("validate: train_iterations, aux_iterations, "+
			"and aux_freq must be positive, have(%d, %d, %d)",
			c.TrainIterations, c.AuxIterations, c.AuxFreq)
	case c.NumEnvs < 1:
		return errors.Errorf("validate: num_envs must be positive, have(%d)",
			c.NumEnvs)
	case c.RolloutLength < c.NumEnvs:
		return errors.Errorf("validate: rollout_length must be at least "+
			"num_envs, have(%d < %d)", c.RolloutLength, c.NumEnvs)
	}

	for name, ceiling := range map[string]*float64{
		"kl_max":        c.KLMax,
		"kl_max_aux":    c.KLMaxAux,
		"grad_norm":     c.GradNorm,
		"grad_norm_ppg": c.GradNormPPG,
	} {
		if ceiling != nil && *ceiling <= 0 {
			return errors.Errorf("validate: %s must be positive or null, "+
				"have(%v)", name, *ceiling)
		}
	}

	if err := validateNet("policy", c.PolicyLayers, c.PolicyBiases,
		c.PolicyActivations); err != nil {
		return err
	}
	if err := validateNet("critic", c.CriticLayers, c.CriticBiases,
		c.CriticActivations); err != nil {
		return err
	}
	if c.PolicySolver == nil || c.CriticSolver == nil {
		return errors.New("validate: policy_solver and critic_solver " +
			"must be set")
	}
	if c.InitWFn == nil {
		return errors.New("validate: init_wfn must be set")
	}

	if c.Pretrain {
		if err := validateNet("encoder", c.EncoderLayers, c.EncoderBiases,
			c.EncoderActivations); err != nil {
			return err
		}
		if c.RepresentationDim < 1 || c.TopK < 1 {
			return errors.Errorf("validate: representation_dim and top_k "+
				"must be positive, have(%d, %d)", c.RepresentationDim, c.TopK)
		}
	}
	return nil
}

// validateNet checks that a network is described by one bias and one
// activation per hidden layer
func validateNet(name string, layers []int, biases []bool,
	activations []*network.Activation) error {
	if len(layers) != len(biases) || len(layers) != len(activations) {
		return errors.Errorf("validate: %s needs one bias and one "+
			"activation per layer, have(%d layers, %d biases, %d "+
			"activations)", name, len(layers), len(biases), len(activations))
	}
	for _, l := range layers {
		if l < 1 {
			return errors.Errorf("validate: %s layer sizes must be "+
				"positive, have(%v)", name, layers)
		}
	}
	return nil
}

// Type returns the type of the configuration
func (c Config) Type() agent.Type {
	return agent.CategoricalPPGMLP
}

// CreateAgent creates and returns the agent determined by the
// configuration
func (c Config) CreateAgent(e environment.Vectorized,
	seed uint64) (agent.Agent, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "createAgent")
	}
	if e.NumEnvs() != c.NumEnvs {
		return nil, errors.Errorf("createAgent: environment runs %d copies "+
			"but num_envs is %d", e.NumEnvs(), c.NumEnvs)
	}

	features := e.ObservationSpec().Shape.Len()
	numActions, err := e.ActionSpec().NumActions()
	if err != nil {
		return nil, errors.Wrap(err, "createAgent")
	}
	init := c.InitWFn.InitWFn()

	actor, err := NewActor(features, numActions, c.NumEnvs, c.BatchSize,
		c.PolicyLayers, c.PolicyBiases, c.PolicyActivations, init,
		c.PolicySolver.Clone(), c.ClipRatio, c.ValueClip, c.Beta, c.ValCoeff)
	if err != nil {
		return nil, errors.Wrap(err, "createAgent: could not create policy")
	}

	critic, err := NewCritic(features, c.NumEnvs, c.BatchSize, c.CriticLayers,
		c.CriticBiases, c.CriticActivations, init, c.CriticSolver.Clone())
	if err != nil {
		return nil, errors.Wrap(err, "createAgent: could not create critic")
	}

	var rewarder Rewarder
	if c.Pretrain {
		encoder, err := pretrain.NewMLPEncoder(features, c.BatchSize,
			c.RepresentationDim, c.EncoderLayers, c.EncoderBiases,
			c.EncoderActivations, init)
		if err != nil {
			return nil, errors.Wrap(err, "createAgent: could not create "+
				"encoder")
		}
		reward, err := pretrain.NewParticleReward(c.TopK, 1, true)
		if err != nil {
			return nil, errors.Wrap(err, "createAgent")
		}
		rewarder = pretrain.NewRewarder(encoder, reward, nil)
	}

	return New(actor, critic, rewarder, c, features, numActions, seed)
}
