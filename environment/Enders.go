package environment

import (
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/goppg/timestep"
)

// StepLimit implements the Ender interface to end episodes at specific
// timestep limits
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit creates and returns a new step limit
func NewStepLimit(episodeSteps int) *StepLimit {
	return &StepLimit{episodeSteps}
}

// End ends the episode with a Timeout once the step limit is reached
func (s *StepLimit) End(t *timestep.TimeStep) bool {
	if t.Number >= s.episodeSteps {
		t.SetEnd(timestep.Timeout)
		return true
	}
	return false
}

// IntervalLimit implements the Ender interface to end episodes
// whenever a single feature in a feature vector leaves some interval
type IntervalLimit struct {
	intervals []r1.Interval
	indices   []int
	endType   timestep.EndType
}

// NewIntervalLimit creates and returns a new interval limit. Feature
// obsIndices[i] must stay within limits[i]. The endType argument
// determines what the episode end should be considered as.
func NewIntervalLimit(limits []r1.Interval, obsIndices []int,
	endType timestep.EndType) *IntervalLimit {
	if len(limits) != len(obsIndices) {
		panic("limits should have same length as observation indices")
	}

	return &IntervalLimit{limits, obsIndices, endType}
}

// End ends the episode if any watched feature has left its interval
func (i *IntervalLimit) End(t *timestep.TimeStep) bool {
	for index, featureIndex := range i.indices {
		interval := i.intervals[index]
		feature := t.Observation.AtVec(featureIndex)

		if feature > interval.Max || feature < interval.Min {
			t.SetEnd(i.endType)
			return true
		}
	}
	return false
}
