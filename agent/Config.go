package agent

import (
	"github.com/samuelfneumann/goppg/environment"
)

// Config represents a configuration for creating an agent
type Config interface {
	// CreateAgent creates the agent that the config describes, acting
	// in the argument vectorised environment
	CreateAgent(env environment.Vectorized, seed uint64) (Agent, error)

	// Validate returns an error describing whether or not the
	// configuration is valid or not.
	Validate() error

	// Type returns the Type of agent the Config creates
	Type() Type
}
