// Package cartpole implements the Cartpole classic control environment
// with discrete actions
package cartpole

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/goppg/environment"
	ts "github.com/samuelfneumann/goppg/timestep"
	"github.com/samuelfneumann/goppg/utils/floatutils"
)

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnification of force applied
	Dt             float64 = 0.02 // seconds between state updates

	// Bounds (+/-) on state variables
	PositionBounds        float64 = 2.4
	SpeedBounds           float64 = math.MaxFloat64
	AngleBounds           float64 = math.Pi
	AngularVelocityBounds float64 = math.MaxFloat64

	// Discrete Actions
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 2

	ObservationDims int = 4
	ActionDims      int = 1
)

// Cartpole implements the classic control environment Cartpole. In
// this environment, a pole is attached to a cart, which can move
// horizontally. The agent must keep the pole upright for as long as
// possible.
//
// The state features are continuous and consist of the cart's x
// position and speed, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity. The position is clipped to
// its bounds and the angle is normalized to (-π, π].
//
// Actions are discrete and consist of the force applied to the cart:
//
//	Action	Meaning
//	  0		Accelerate left
//	  1		Do nothing
//	  2		Accelerate right
//
// Illegal actions will cause the environment to panic.
type Cartpole struct {
	env.Task
	lastStep    ts.TimeStep
	discount    float64
	positions   r1.Interval
	speeds      r1.Interval
	angles      r1.Interval
	angularVels r1.Interval
}

// New constructs a new Cartpole environment
func New(t env.Task, discount float64) (*Cartpole, ts.TimeStep) {
	c := &Cartpole{
		Task:        t,
		discount:    discount,
		positions:   r1.Interval{Min: -PositionBounds, Max: PositionBounds},
		speeds:      r1.Interval{Min: -SpeedBounds, Max: SpeedBounds},
		angles:      r1.Interval{Min: -AngleBounds, Max: AngleBounds},
		angularVels: r1.Interval{Min: -AngularVelocityBounds, Max: AngularVelocityBounds},
	}
	return c, c.Reset()
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (c *Cartpole) Reset() ts.TimeStep {
	state := c.Start()
	c.validateState(state)

	c.lastStep = ts.New(ts.First, 0, c.discount, state, 0)
	return c.lastStep
}

// ActionSpec returns the action specification of the environment
func (c *Cartpole) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{float64(MinDiscreteAction)})
	upperBound := mat.NewVecDense(ActionDims, []float64{float64(MaxDiscreteAction)})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Discrete)
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Cartpole) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)

	lower := []float64{c.positions.Min, c.speeds.Min, c.angles.Min,
		c.angularVels.Min}
	upper := []float64{c.positions.Max, c.speeds.Max, c.angles.Max,
		c.angularVels.Max}

	return env.NewSpec(shape, env.Observation,
		mat.NewVecDense(ObservationDims, lower),
		mat.NewVecDense(ObservationDims, upper), env.Continuous)
}

// DiscountSpec returns the discounting specification of the environment
func (c *Cartpole) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{c.discount})
	upperBound := mat.NewVecDense(1, []float64{c.discount})

	return env.NewSpec(shape, env.Discount, lowerBound, upperBound,
		env.Continuous)
}

// Step takes one environmental step given action a and returns the next
// state as a timestep.TimeStep and a bool indicating whether or not the
// episode has ended
func (c *Cartpole) Step(a *mat.VecDense) (ts.TimeStep, bool) {
	if a.Len() != ActionDims {
		panic("step: actions should be 1-dimensional")
	}

	action := int(a.AtVec(0))
	if action < MinDiscreteAction || action > MaxDiscreteAction {
		panic(fmt.Sprintf("step: illegal action %v ∉ (0, 1, 2)", action))
	}

	// Convert action (0, 1, 2) to a direction (-1, 0, 1)
	force := float64(action-1) * ForceMag

	state := c.lastStep.Observation
	x, xDot := state.AtVec(0), state.AtVec(1)
	th, thDot := state.AtVec(2), state.AtVec(3)

	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassLength := PoleMass * HalfPoleLength

	temp := (force + poleMassLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thAcc*cosTheta/totalMass

	// Update state variables using Euler kinematic integration
	x += Dt * xDot
	xDot += Dt * xAcc
	if x < c.positions.Min || x > c.positions.Max {
		// The cart stops at the walls
		x = floatutils.ClipInterval(x, c.positions)
		xDot = 0
	}

	th = normalizeAngle(th+Dt*thDot, c.angles)
	thDot += Dt * thAcc

	newState := mat.NewVecDense(ObservationDims, []float64{x, xDot, th, thDot})
	reward := c.GetReward(state, a, newState)
	nextStep := ts.New(ts.Mid, reward, c.discount, newState,
		c.lastStep.Number+1)

	c.End(&nextStep)

	c.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// validateState ensures that a starting state is within the physical
// bounds of the Cartpole environment
func (c *Cartpole) validateState(obs mat.Vector) {
	bounds := []r1.Interval{c.positions, c.speeds, c.angles, c.angularVels}
	for i, b := range bounds {
		if obs.AtVec(i) < b.Min || obs.AtVec(i) > b.Max {
			panic(fmt.Sprintf("validateState: feature %d = %v is not "+
				"within bounds %v", i, obs.AtVec(i), b))
		}
	}
}

func (c *Cartpole) String() string {
	msg := "Cartpole  |  Position: %v  | Speed: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"

	state := c.lastStep.Observation
	return fmt.Sprintf(msg, state.AtVec(0), state.AtVec(1), state.AtVec(2),
		state.AtVec(3))
}

// normalizeAngle normalizes the pole angle to (-π, π]
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if angleBounds.Max != -angleBounds.Min {
		panic("angle bounds should be centered around 0")
	}

	width := angleBounds.Max - angleBounds.Min
	for th > angleBounds.Max {
		th -= width
	}
	for th <= angleBounds.Min {
		th += width
	}
	return th
}
