// Package initwfn implements functionality to wrap Gorgonia InitWFn
// so that they can be JSON serialized into configuration files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU  Type = "GlorotU"
	GlorotN  Type = "GlorotN"
	HeU      Type = "HeU"
	HeN      Type = "HeN"
	Gaussian Type = "Gaussian"
	Uniform  Type = "Uniform"
	Zeroes   Type = "Zeroes"
	Constant Type = "Constant"
)

// registered maps each Type to its concrete Config type
var registered = map[Type]reflect.Type{
	GlorotU:  reflect.TypeOf(GainConfig{}),
	GlorotN:  reflect.TypeOf(GainConfig{}),
	HeU:      reflect.TypeOf(GainConfig{}),
	HeN:      reflect.TypeOf(GainConfig{}),
	Gaussian: reflect.TypeOf(GaussianConfig{}),
	Uniform:  reflect.TypeOf(UniformConfig{}),
	Zeroes:   reflect.TypeOf(ConstantConfig{}),
	Constant: reflect.TypeOf(ConstantConfig{}),
}

// InitWFn wraps Gorgonia InitWFn so that they can be JSON marshalled and
// unmarshalled.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// newInitWFn returns a new InitWFn
func newInitWFn(t Type, c Config) (*InitWFn, error) {
	if reflect.TypeOf(c) != registered[t] {
		return nil, errors.Errorf("newInitWFn: invalid configuration %T "+
			"for type %v", c, t)
	}
	init := InitWFn{Type: t, Config: c}
	init.initWFn = init.Config.Create(t)

	return &init, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (i *InitWFn) InitWFn() G.InitWFn {
	return i.initWFn
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unmarshalJSON")
	}

	ty, ok := registered[raw.Type]
	if !ok {
		return errors.Errorf("unmarshalJSON: unknown InitWFn type %q",
			raw.Type)
	}

	value := reflect.New(ty)
	if len(raw.Config) > 0 {
		if err := json.Unmarshal(raw.Config, value.Interface()); err != nil {
			return errors.Wrapf(err, "unmarshalJSON: could not decode %v "+
				"config", raw.Type)
		}
	}

	i.Type = raw.Type
	i.Config = value.Elem().Interface().(Config)
	i.initWFn = i.Config.Create(i.Type)

	return nil
}

// Config implements a Gorgonia InitWFn configuration and can be used to
// create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn of type t that the Config
	// describes
	Create(t Type) G.InitWFn
}
