package metrics

import (
	"encoding/gob"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Recorder is a Sink that keeps every recorded value in memory so that
// it can be inspected or saved to disk after the experiment.
type Recorder struct {
	data    map[string][]float64
	flushes int
}

// NewRecorder returns a new, empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{data: make(map[string][]float64)}
}

// Record implements the Sink interface
func (r *Recorder) Record(name string, value float64) {
	r.data[name] = append(r.data[name], value)
}

// Flush implements the Sink interface. A Recorder keeps no per-report
// state, so Flush only counts reports.
func (r *Recorder) Flush() {
	r.flushes++
}

// Flushes returns the number of times Flush was called
func (r *Recorder) Flushes() int { return r.flushes }

// Values returns a copy of all values recorded under name, in the order
// they were recorded
func (r *Recorder) Values(name string) []float64 {
	return append([]float64{}, r.data[name]...)
}

// Last returns the most recent value recorded under name and whether
// any value was recorded
func (r *Recorder) Last(name string) (float64, bool) {
	values := r.data[name]
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// Names returns the sorted names of all recorded metrics
func (r *Recorder) Names() []string {
	names := make([]string, 0, len(r.data))
	for name := range r.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save saves all recorded data to filename, which can be read back
// with LoadData
func (r *Recorder) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "save: could not open save file")
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(r.data); err != nil {
		return errors.Wrap(err, "save: could not encode data")
	}
	return nil
}
