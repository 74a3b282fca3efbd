package pretrain

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppg/experiment/checkpointer"
	"github.com/samuelfneumann/goppg/experiment/metrics"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Encoder maps states into a representation space, one row per state
type Encoder interface {
	Encode(states mat.Matrix) (*mat.Dense, error)
}

// Rewarder computes intrinsic rewards for the next states of a
// rollout by encoding them and scoring the representations with a
// ParticleReward.
type Rewarder struct {
	encoder Encoder
	reward  *ParticleReward
	sink    metrics.Sink
}

// NewRewarder returns a new Rewarder. Diagnostics are recorded in sink.
func NewRewarder(e Encoder, r *ParticleReward, sink metrics.Sink) *Rewarder {
	if sink == nil {
		sink = metrics.Discard
	}
	return &Rewarder{encoder: e, reward: r, sink: sink}
}

// SetSink sets the sink that diagnostics are recorded in
func (r *Rewarder) SetSink(sink metrics.Sink) {
	if sink == nil {
		sink = metrics.Discard
	}
	r.sink = sink
}

// Rewards returns the intrinsic reward of each row of nextStates
func (r *Rewarder) Rewards(nextStates *mat.Dense) ([]float64, error) {
	representations, err := r.encoder.Encode(nextStates)
	if err != nil {
		return nil, errors.Wrap(err, "rewards: could not encode states")
	}

	rewards := r.reward.Rewards(representations)
	if n := r.reward.NonFinite(); n > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d kNN distances were not finite "+
			"and were replaced by zero\n", n)
	}

	stats := r.reward.Stats()
	r.sink.Record("particle_reward", stat.Mean(rewards, nil))
	r.sink.Record("knn_nonfinite", float64(r.reward.NonFinite()))
	r.sink.Record("running_mean", stats.Mean())
	r.sink.Record("running_var", stats.Var())

	return rewards, nil
}

// GobEncode implements the gob.GobEncoder interface. The running
// statistics are always saved; the encoder is saved if it is
// checkpointer.Serializable.
func (r *Rewarder) GobEncode() ([]byte, error) {
	stats, err := r.reward.stats.GobEncode()
	if err != nil {
		return nil, errors.Wrap(err, "gobEncode")
	}

	encoder := []byte{}
	if s, ok := r.encoder.(checkpointer.Serializable); ok {
		if encoder, err = s.GobEncode(); err != nil {
			return nil, errors.Wrap(err, "gobEncode")
		}
	}

	data, err := checkpointer.Encode(stats, encoder)
	if err != nil {
		return nil, errors.Wrap(err, "gobEncode")
	}
	return data, nil
}

// GobDecode implements the gob.GobDecoder interface
func (r *Rewarder) GobDecode(data []byte) error {
	var stats, encoder []byte
	if err := checkpointer.Decode(data, &stats, &encoder); err != nil {
		return errors.Wrap(err, "gobDecode")
	}

	if err := r.reward.stats.GobDecode(stats); err != nil {
		return errors.Wrap(err, "gobDecode")
	}
	if s, ok := r.encoder.(checkpointer.Serializable); ok && len(encoder) > 0 {
		if err := s.GobDecode(encoder); err != nil {
			return errors.Wrap(err, "gobDecode")
		}
	}
	return nil
}
