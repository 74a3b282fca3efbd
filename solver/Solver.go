// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be JSON serialized into configuration files, as well
// as the gradient step disciplines used to apply them.
package solver

import (
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// Solver wraps Gorgonia Solvers so that they can be JSON marshalled and
// unmarshalled.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, errors.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// Clone returns a Solver with the same configuration but fresh solver
// state, for example fresh Adam moment estimates. Each network should
// be trained with its own clone.
func (s *Solver) Clone() *Solver {
	return &Solver{Solver: s.Config.Create(), Type: s.Type, Config: s.Config}
}

// registered maps each solver Type to its concrete Config type
var registered = map[Type]reflect.Type{
	Vanilla: reflect.TypeOf(VanillaConfig{}),
	Adam:    reflect.TypeOf(AdamConfig{}),
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unmarshalJSON")
	}

	ty, found := registered[raw.Type]
	if !found {
		return errors.Errorf("unmarshalJSON: unknown solver type %q",
			raw.Type)
	}
	config := reflect.New(ty)
	if err := json.Unmarshal(raw.Config, config.Interface()); err != nil {
		return errors.Wrapf(err, "unmarshalJSON: could not decode %v "+
			"config", raw.Type)
	}

	s.Type = raw.Type
	s.Config = config.Elem().Interface().(Config)
	s.Solver = s.Config.Create()
	return nil
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}
