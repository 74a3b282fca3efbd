// Package metrics implements sinks for the named scalar values that
// agents and experiments emit while they run.
package metrics

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
)

// Sink receives named scalar metrics. Values recorded between two
// calls to Flush belong to the same report, for example a single
// rollout.
type Sink interface {
	Record(name string, value float64)
	Flush()
}

// Discard is a Sink that drops every metric
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(string, float64) {}
func (discard) Flush()                 {}

// multi fans metrics out to a number of Sinks
type multi []Sink

// Multi returns a Sink that forwards every call to each of sinks
func Multi(sinks ...Sink) Sink {
	return multi(append([]Sink{}, sinks...))
}

// Record implements the Sink interface
func (m multi) Record(name string, value float64) {
	for _, s := range m {
		s.Record(name, value)
	}
}

// Flush implements the Sink interface
func (m multi) Flush() {
	for _, s := range m {
		s.Flush()
	}
}

// LoadData loads and returns the data saved by a Recorder
func LoadData(filename string) (map[string][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "loadData: could not open data file")
	}
	defer file.Close()

	var data map[string][]float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "loadData: could not decode data")
	}
	return data, nil
}
