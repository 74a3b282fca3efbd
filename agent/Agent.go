// Package agent defines the interfaces between agents and the
// experiments that run them.
package agent

import (
	"github.com/samuelfneumann/goppg/experiment/checkpointer"
	"github.com/samuelfneumann/goppg/experiment/metrics"
	"gonum.org/v1/gonum/mat"
)

// Sample holds everything an agent computed while selecting actions
// for a batch of states, one entry or row per state. It is returned by
// Act and handed back to the agent with Observe so that the statistics
// recorded for a state always come from the policy that acted in it.
type Sample struct {
	Actions   []int
	LogProbs  []float64  // log π(Actions | states)
	Values    []float64  // Critic estimate of each state
	AuxValues []float64  // Auxiliary value head of the policy network
	LogDists  *mat.Dense // log π(· | states), one row per state
}

// Len returns the number of states the Sample was drawn for
func (s Sample) Len() int { return len(s.Actions) }

// Agent is an on-policy agent acting in a number of parallel
// environments. Each call to Act and Observe handles one vectorised
// step: row i of every matrix belongs to environment i.
//
// Agents collect transitions until Ready returns true; the experiment
// must then call Learn before acting again.
type Agent interface {
	// Act selects an action in each of the argument states
	Act(states *mat.Dense) (Sample, error)

	// Observe records the transitions that followed a call to Act:
	// the states acted in, the next states reached, the Sample
	// returned by Act, and the environment rewards and episode ends.
	Observe(states, nextStates *mat.Dense, s Sample, rewards []float64,
		dones []bool)

	// Ready returns whether enough transitions have been collected to
	// learn
	Ready() bool

	// Learn trains the agent on the collected transitions and then
	// discards them. The argument is the total number of environment
	// steps taken so far in the experiment.
	Learn(totalSteps int) error
}

// Instrumented is an Agent that emits training metrics
type Instrumented interface {
	Agent
	SetSink(metrics.Sink)
}

// Persistent is an Agent whose state can be saved and restored. A
// Persistent Agent calls the Checkpointer it was given at the end of
// each call to Learn.
type Persistent interface {
	Agent
	checkpointer.Serializable
	SetCheckpointer(checkpointer.Checkpointer)
}
