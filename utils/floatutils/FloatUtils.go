// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"

	"gonum.org/v1/gonum/spatial/r1"
)

// ClipInterval returns value clipped to lie within interval. NaN is
// returned unchanged.
func ClipInterval(value float64, interval r1.Interval) float64 {
	return math.Max(interval.Min, math.Min(value, interval.Max))
}
