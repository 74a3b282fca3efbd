package experiment

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goppg/agent"
	"github.com/samuelfneumann/goppg/environment"
	"github.com/samuelfneumann/goppg/experiment/metrics"
	"github.com/samuelfneumann/goppg/utils/progressbar"
)

// Online is an Experiment that runs an agent online only. No offline
// evaluation is performed. Each step of the experiment is one step in
// every copy of the vectorised environment; whenever the agent's
// rollout is complete, the agent learns from it.
type Online struct {
	env      environment.Vectorized
	agent    agent.Agent
	maxSteps int
	steps    int

	recorder *metrics.Recorder
	sink     metrics.Sink
	bar      *progressbar.ProgressBar
}

// NewOnline creates and returns a new online experiment running a on e
// for maxSteps environment steps, summed over all copies of e. All
// metrics are recorded in memory and additionally sent to sinks. If a
// emits metrics, it emits them to the same sinks.
func NewOnline(e environment.Vectorized, a agent.Agent, maxSteps int,
	sinks ...metrics.Sink) *Online {
	recorder := metrics.NewRecorder()
	sink := metrics.Multi(append([]metrics.Sink{recorder}, sinks...)...)
	if inst, ok := a.(agent.Instrumented); ok {
		inst.SetSink(sink)
	}

	return &Online{
		env:      e,
		agent:    a,
		maxSteps: maxSteps,
		recorder: recorder,
		sink:     sink,
	}
}

// SetProgressBar sets a progress bar to display while running
func (o *Online) SetProgressBar(bar *progressbar.ProgressBar) {
	o.bar = bar
}

// Steps returns the number of environment steps taken so far
func (o *Online) Steps() int { return o.steps }

// Metrics returns the metrics recorded so far
func (o *Online) Metrics() *metrics.Recorder { return o.recorder }

// Run runs the experiment until the maximum number of steps is reached
func (o *Online) Run() error {
	if o.bar != nil {
		defer o.bar.Close()
	}

	_, instrumented := o.agent.(agent.Instrumented)
	states := o.env.Reset()
	for o.steps < o.maxSteps {
		s, err := o.agent.Act(states)
		if err != nil {
			return errors.Wrapf(err, "run: step %d", o.steps)
		}

		next, rewards, dones := o.env.Step(s.Actions)
		o.agent.Observe(states, next, s, rewards, dones)
		o.steps += o.env.NumEnvs()
		o.track()
		states = o.env.Observations()

		if o.agent.Ready() {
			if err := o.agent.Learn(o.steps); err != nil {
				return errors.Wrapf(err, "run: step %d", o.steps)
			}
			if !instrumented {
				o.sink.Flush()
			}
		}

		if o.bar != nil {
			o.bar.Add(o.env.NumEnvs())
			o.bar.Display()
		}
	}
	return nil
}

// track records the episodes completed on the last step
func (o *Online) track() {
	for _, ep := range o.env.Episodes() {
		o.sink.Record("episode_return", ep.Return)
		o.sink.Record("episode_length", float64(ep.Length))
	}
}

// Save saves all metrics recorded so far to filename
func (o *Online) Save(filename string) error {
	if err := o.recorder.Save(filename); err != nil {
		return errors.Wrap(err, "save")
	}
	return nil
}
