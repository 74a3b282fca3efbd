package metrics

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Logger is a Sink that writes one log line per report. Each metric is
// summarised by the mean of the values recorded for it since the last
// Flush.
type Logger struct {
	logger *log.Logger
	prefix string
	values map[string][]float64
}

// NewLogger returns a new Logger writing to logger. Every line starts
// with prefix.
func NewLogger(logger *log.Logger, prefix string) *Logger {
	return &Logger{
		logger: logger,
		prefix: prefix,
		values: make(map[string][]float64),
	}
}

// Record implements the Sink interface
func (l *Logger) Record(name string, value float64) {
	l.values[name] = append(l.values[name], value)
}

// Flush implements the Sink interface. Nothing is logged if nothing was
// recorded.
func (l *Logger) Flush() {
	if len(l.values) == 0 {
		return
	}

	names := make([]string, 0, len(l.values))
	for name := range l.values {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]string, len(names))
	for i, name := range names {
		fields[i] = fmt.Sprintf("%s=%.4g", name, stat.Mean(l.values[name], nil))
	}
	l.logger.Printf("%s%s", l.prefix, strings.Join(fields, " "))

	l.values = make(map[string][]float64)
}
