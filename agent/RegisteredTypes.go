package agent

import (
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
)

// Type represents a specific type of an agent Config.
// Config's with this type can create Agents of the corresponding type.
type Type string

const (
	CategoricalPPGMLP Type = "CategoricalPPG-MLP"
)

// Registered types with the package. Once a Type has been registered
// with this map, a TypedConfig with that type can be unmarshalled.
//
// No Type's are registered with this package upon initialization.
// Each separate package is in charge of registering its Type with
// the package separately to avoid circular imports.
var registeredTypes = make(map[Type]reflect.Type)

// Register registers an agent's Type with a concrete Config type
// so that upon deserialization of a TypedConfig, Configs of type
// agentType are deserialized into the concrete type of config.
func Register(agentType Type, config Config) {
	registeredTypes[agentType] = reflect.TypeOf(config)
}

// TypedConfig implements functionality for typing a Config. In this
// way, a Config can explicitly have its type stored so that when
// deserializing the Config, we can deserialize it into its concrete
// type without knowing beforehand or declaring beforehand a variable
// of its concrete type.
type TypedConfig struct {
	Type
	Config
}

// NewTypedConfig types the argument Config and returns it as a
// TypedConfig which explicitly holds its Type.
func NewTypedConfig(c Config) TypedConfig {
	return TypedConfig{Type: c.Type(), Config: c}
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (t *TypedConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unmarshalJSON")
	}

	ty, found := registeredTypes[raw.Type]
	if !found {
		return errors.Errorf("unmarshalJSON: agent type %q not registered",
			raw.Type)
	}

	// Registered Configs may be values or pointers
	var value reflect.Value
	if ty.Kind() == reflect.Ptr {
		value = reflect.New(ty.Elem())
	} else {
		value = reflect.New(ty)
	}
	if err := json.Unmarshal(raw.Config, value.Interface()); err != nil {
		return errors.Wrapf(err, "unmarshalJSON: could not decode %v config",
			raw.Type)
	}
	if ty.Kind() != reflect.Ptr {
		value = value.Elem()
	}

	t.Type = raw.Type
	t.Config = value.Interface().(Config)
	return nil
}
