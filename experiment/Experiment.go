// Package experiment implements functionality for running an experiment
package experiment

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppg/agent"
	"github.com/samuelfneumann/goppg/environment/envconfig"
	"github.com/samuelfneumann/goppg/experiment/checkpointer"
	"github.com/samuelfneumann/goppg/experiment/metrics"
	"github.com/samuelfneumann/goppg/utils/progressbar"
)

// Config represents a configuration of an experiment: an agent acting
// in a vectorised environment for a number of environment steps.
type Config struct {
	MaxSteps  int
	Seed      uint64
	EnvConf   envconfig.Config
	AgentConf agent.TypedConfig

	// Checkpoint is the file the agent is saved to. If empty, the agent
	// is not checkpointed. The agent is saved after every
	// CheckpointEvery calls to Learn; if KeepCheckpoints is true, each
	// checkpoint gets its own enumerated file instead of overwriting
	// the previous one.
	Checkpoint      string
	CheckpointEvery int
	KeepCheckpoints bool

	// Resume is a checkpoint to restore the agent from before running
	Resume string

	// MetricsFile is the file the recorded metrics are saved to
	MetricsFile string

	ProgressBar bool
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.MaxSteps < 1 {
		return errors.Errorf("validate: MaxSteps must be positive, have(%d)",
			c.MaxSteps)
	}
	if c.AgentConf.Config == nil {
		return errors.New("validate: no agent configuration")
	}
	if err := c.AgentConf.Validate(); err != nil {
		return errors.Wrap(err, "validate")
	}
	return nil
}

// CreateExp creates the experiment described by the Config. Metrics
// are logged to logger after every call to Learn if logger is not nil.
func (c Config) CreateExp(logger *log.Logger) (*Online, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "createExp")
	}

	env, err := c.EnvConf.Create(c.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "createExp: could not create "+
			"environment")
	}
	a, err := c.AgentConf.CreateAgent(env, c.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "createExp: could not create agent")
	}

	if c.Resume != "" || c.Checkpoint != "" {
		p, ok := a.(agent.Persistent)
		if !ok {
			return nil, errors.Errorf("createExp: agent %v cannot be "+
				"checkpointed", c.AgentConf.Type)
		}
		if c.Resume != "" {
			if err := checkpointer.Load(c.Resume, p); err != nil {
				return nil, errors.Wrap(err, "createExp")
			}
		}
		if c.Checkpoint != "" {
			p.SetCheckpointer(checkpointer.NewNStep(c.CheckpointEvery,
				checkpointer.NewFile(p, c.checkpointNames())))
		}
	}

	var sinks []metrics.Sink
	if logger != nil {
		sinks = append(sinks, metrics.NewLogger(logger, ""))
	}
	exp := NewOnline(env, a, c.MaxSteps, sinks...)
	if c.ProgressBar {
		exp.SetProgressBar(progressbar.New(os.Stdout, 50, c.MaxSteps))
	}
	return exp, nil
}

// checkpointNames returns the naming function of checkpoint files
func (c Config) checkpointNames() func() string {
	if !c.KeepCheckpoints {
		return checkpointer.Fixed(c.Checkpoint)
	}
	ext := filepath.Ext(c.Checkpoint)
	return checkpointer.FilenameEnumerator(0,
		strings.TrimSuffix(c.Checkpoint, ext), ext)
}
