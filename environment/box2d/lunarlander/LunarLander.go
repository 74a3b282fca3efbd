// Package lunarlander implements the Lunar Lander environment with
// discrete actions, simulated with Box2D
package lunarlander

import (
	"fmt"
	"math"

	"github.com/ByteArena/box2d"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	env "github.com/samuelfneumann/goppg/environment"
	ts "github.com/samuelfneumann/goppg/timestep"
)

const (
	FPS   float64 = 50
	Scale float64 = 30 // Pixels per Box2D unit

	Gravity float64 = -10.0

	MainEnginePower float64 = 13.0
	SideEnginePower float64 = 0.6

	LegAway         float64 = 20
	LegDown         float64 = 18
	LegW            float64 = 2
	LegH            float64 = 8
	LegSpringTorque float64 = 40

	SideEngineHeight float64 = 14
	SideEngineAway   float64 = 12

	Chunks int = 11

	ViewportW float64 = 600
	ViewportH float64 = 400

	// Default start: the lander is dropped at the top centre and
	// pushed by a random force of at most InitialRandom per axis
	InitialX      float64 = ViewportW / Scale / 2
	InitialY      float64 = ViewportH / Scale
	InitialRandom float64 = 1000

	ObservationDims int = 8
	ActionDims      int = 1

	// Discrete Actions
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 3
)

// landerPoly outlines the lander hull in pixels
var landerPoly = [][2]float64{
	{-14, 17}, {-17, 0}, {-17, -10}, {17, -10}, {17, 0}, {14, 17},
}

// LunarLander is an environment in which the agent must land a lunar
// module on a helipad between two flags on randomly generated terrain.
//
// Observations are the lander's position relative to the helipad, its
// linear velocity, its angle and angular velocity, and whether each
// leg touches the ground.
//
// Actions are discrete:
//
//	Action	Meaning
//	  0		Do nothing
//	  1		Fire left orientation engine
//	  2		Fire main engine
//	  3		Fire right orientation engine
//
// Illegal actions will cause the environment to panic.
type LunarLander struct {
	*Land

	world  *box2d.B2World
	moon   *box2d.B2Body
	lander *box2d.B2Body
	legs   [2]*box2d.B2Body

	legContact [2]bool
	crashed    bool
	mPower     float64
	sPower     float64
	helipadY   float64

	rng      distuv.Uniform
	discount float64
	lastStep ts.TimeStep
}

// New returns a new LunarLander. The Land task is bound to the
// environment so that rewards can account for fuel and crashes.
func New(task *Land, discount float64, seed uint64) (*LunarLander,
	ts.TimeStep) {
	l := &LunarLander{
		Land:     task,
		discount: discount,
		rng:      distuv.Uniform{Min: 0, Max: 1, Src: rand.NewSource(seed)},
	}
	task.bind(l)
	return l, l.Reset()
}

// Reset generates new terrain and drops a new lander from the
// starting state given by the Starter, which is (x, y, force).
func (l *LunarLander) Reset() ts.TimeStep {
	start := l.Start()
	if start.Len() != 3 {
		panic(fmt.Sprintf("reset: starting states should be (x, y, force), "+
			"have(%v)", start.Len()))
	}

	world := box2d.MakeB2World(box2d.MakeB2Vec2(0, Gravity))
	l.world = &world
	l.world.SetContactListener(&contactListener{l})
	l.legContact = [2]bool{}
	l.crashed = false

	l.buildTerrain()
	l.buildLander(start.AtVec(0), start.AtVec(1), start.AtVec(2))

	// Settle the legs for one frame, as the shaping reward needs a
	// previous state
	l.Land.reset()
	obs := l.simulate(0)
	l.GetReward(nil, nil, obs)

	l.lastStep = ts.New(ts.First, 0, l.discount, obs, 0)
	return l.lastStep
}

// buildTerrain creates the moon surface with a flat helipad at its
// centre
func (l *LunarLander) buildTerrain() {
	w, h := ViewportW/Scale, ViewportH/Scale

	height := make([]float64, Chunks+1)
	for i := range height {
		height[i] = l.uniform(0, h/2)
	}
	l.helipadY = h / 4
	for i := Chunks/2 - 2; i <= Chunks/2+2; i++ {
		height[i] = l.helipadY
	}

	chunkX := make([]float64, Chunks)
	smoothY := make([]float64, Chunks)
	for i := range chunkX {
		chunkX[i] = w / float64(Chunks-1) * float64(i)
		prev := len(height) - 1
		if i > 0 {
			prev = i - 1
		}
		smoothY[i] = 0.33 * (height[prev] + height[i] + height[i+1])
	}

	def := box2d.MakeB2BodyDef()
	l.moon = l.world.CreateBody(&def)

	edge := func(x1, y1, x2, y2, friction float64) {
		shape := box2d.NewB2EdgeShape()
		shape.Set(box2d.MakeB2Vec2(x1, y1), box2d.MakeB2Vec2(x2, y2))
		fix := box2d.MakeB2FixtureDef()
		fix.Shape = shape
		fix.Friction = friction
		l.moon.CreateFixtureFromDef(&fix)
	}
	edge(0, 0, w, 0, 0.2)
	for i := 0; i < Chunks-1; i++ {
		edge(chunkX[i], smoothY[i], chunkX[i+1], smoothY[i+1], 0.1)
	}
}

// buildLander creates the lander hull at (x, y), pushes it with a
// random force of at most force per axis, and attaches its legs
func (l *LunarLander) buildLander(x, y, force float64) {
	def := box2d.MakeB2BodyDef()
	def.Type = box2d.B2BodyType.B2_dynamicBody
	def.Position = box2d.MakeB2Vec2(x, y)
	l.lander = l.world.CreateBody(&def)

	vertices := make([]box2d.B2Vec2, len(landerPoly))
	for i, v := range landerPoly {
		vertices[i] = box2d.MakeB2Vec2(v[0]/Scale, v[1]/Scale)
	}
	hull := box2d.NewB2PolygonShape()
	hull.Set(vertices, len(vertices))
	l.lander.CreateFixtureFromDef(fixture(hull, 5.0, 0x0010))

	l.lander.ApplyForceToCenter(box2d.MakeB2Vec2(l.uniform(-force, force),
		l.uniform(-force, force)), true)

	for i, side := range []float64{-1, 1} {
		legDef := box2d.MakeB2BodyDef()
		legDef.Type = box2d.B2BodyType.B2_dynamicBody
		legDef.Position = box2d.MakeB2Vec2(x-side*LegAway/Scale, y)
		legDef.Angle = side * 0.05
		leg := l.world.CreateBody(&legDef)

		shape := box2d.NewB2PolygonShape()
		shape.SetAsBox(LegW/Scale, LegH/Scale)
		leg.CreateFixtureFromDef(fixture(shape, 1.0, 0x0020))

		joint := box2d.MakeB2RevoluteJointDef()
		joint.BodyA = l.lander
		joint.BodyB = leg
		joint.LocalAnchorB = box2d.MakeB2Vec2(side*LegAway/Scale,
			LegDown/Scale)
		joint.EnableMotor = true
		joint.EnableLimit = true
		joint.MaxMotorTorque = LegSpringTorque
		joint.MotorSpeed = 0.3 * side
		if side < 0 {
			joint.LowerAngle, joint.UpperAngle = 0.4, 0.9
		} else {
			joint.LowerAngle, joint.UpperAngle = -0.9, -0.4
		}
		l.world.CreateJoint(&joint)

		l.legs[i] = leg
	}
}

// fixture returns a fixture definition for a lander part that only
// collides with the terrain
func fixture(shape box2d.B2ShapeInterface, density float64,
	category uint16) *box2d.B2FixtureDef {
	fix := box2d.MakeB2FixtureDef()
	fix.Shape = shape
	fix.Density = density
	fix.Friction = 0.1
	fix.Filter.CategoryBits = category
	fix.Filter.MaskBits = 0x001
	return &fix
}

// Step fires the engine selected by action a and advances the
// simulation by one frame
func (l *LunarLander) Step(a *mat.VecDense) (ts.TimeStep, bool) {
	if a.Len() != ActionDims {
		panic("step: actions should be 1-dimensional")
	}
	action := int(a.AtVec(0))
	if action < MinDiscreteAction || action > MaxDiscreteAction {
		panic(fmt.Sprintf("step: illegal action %v ∉ [%v, %v]", action,
			MinDiscreteAction, MaxDiscreteAction))
	}

	obs := l.simulate(action)
	reward := l.GetReward(l.lastStep.Observation, a, obs)
	nextStep := ts.New(ts.Mid, reward, l.discount, obs, l.lastStep.Number+1)
	l.End(&nextStep)

	l.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// simulate applies the engine impulses of action, steps the world, and
// returns the resulting observation
func (l *LunarLander) simulate(action int) *mat.VecDense {
	angle := l.lander.GetAngle()
	tip := [2]float64{math.Sin(angle), math.Cos(angle)}
	side := [2]float64{-tip[1], tip[0]}
	dispersion := [2]float64{l.uniform(-1, 1) / Scale,
		l.uniform(-1, 1) / Scale}
	pos := l.lander.GetPosition()

	l.mPower, l.sPower = 0, 0
	switch action {
	case 2:
		l.mPower = 1
		ox := tip[0]*(4/Scale+2*dispersion[0]) + side[0]*dispersion[1]
		oy := -tip[1]*(4/Scale+2*dispersion[0]) - side[1]*dispersion[1]
		l.impulse(ox, oy, pos.X+ox, pos.Y+oy, MainEnginePower)

	case 1, 3:
		l.sPower = 1
		direction := float64(action - 2)
		away := 3*dispersion[1] + direction*SideEngineAway/Scale
		ox := tip[0]*dispersion[0] + side[0]*away
		oy := -tip[1]*dispersion[0] - side[1]*away
		l.impulse(ox, oy, pos.X+ox-tip[0]*17/Scale,
			pos.Y+oy+tip[1]*SideEngineHeight/Scale, SideEnginePower)
	}

	l.world.Step(1/FPS, 6*int(Scale), 2*int(Scale))
	return l.observe()
}

// impulse pushes the lander opposite to the engine offset (ox, oy),
// applied at (x, y)
func (l *LunarLander) impulse(ox, oy, x, y, power float64) {
	l.lander.ApplyLinearImpulse(box2d.MakeB2Vec2(-ox*power, -oy*power),
		box2d.MakeB2Vec2(x, y), true)
}

func (l *LunarLander) observe() *mat.VecDense {
	pos := l.lander.GetPosition()
	vel := l.lander.GetLinearVelocity()
	halfW, halfH := ViewportW/Scale/2, ViewportH/Scale/2

	obs := []float64{
		(pos.X - halfW) / halfW,
		(pos.Y - (l.helipadY + LegDown/Scale)) / halfH,
		vel.X * halfW / FPS,
		vel.Y * halfH / FPS,
		l.lander.GetAngle(),
		20 * l.lander.GetAngularVelocity() / FPS,
		0, 0,
	}
	for i, contact := range l.legContact {
		if contact {
			obs[6+i] = 1
		}
	}
	return mat.NewVecDense(ObservationDims, obs)
}

func (l *LunarLander) uniform(min, max float64) float64 {
	return min + (max-min)*l.rng.Rand()
}

// Crashed returns whether the lander hull has touched the terrain
func (l *LunarLander) Crashed() bool { return l.crashed }

// Resting returns whether the lander has come to rest
func (l *LunarLander) Resting() bool { return !l.lander.IsAwake() }

// FuelUsed returns the power of the main and orientation engines
// fired on the last step
func (l *LunarLander) FuelUsed() (main, side float64) {
	return l.mPower, l.sPower
}

// ActionSpec returns the action specification of the environment
func (l *LunarLander) ActionSpec() env.Spec {
	return env.NewSpec(mat.NewVecDense(ActionDims, nil), env.Action,
		mat.NewVecDense(ActionDims, []float64{float64(MinDiscreteAction)}),
		mat.NewVecDense(ActionDims, []float64{float64(MaxDiscreteAction)}),
		env.Discrete)
}

// ObservationSpec returns the observation specification of the
// environment
func (l *LunarLander) ObservationSpec() env.Spec {
	lower := make([]float64, ObservationDims)
	upper := make([]float64, ObservationDims)
	for i := 0; i < 6; i++ {
		lower[i], upper[i] = math.Inf(-1), math.Inf(1)
	}
	upper[6], upper[7] = 1, 1

	return env.NewSpec(mat.NewVecDense(ObservationDims, nil),
		env.Observation, mat.NewVecDense(ObservationDims, lower),
		mat.NewVecDense(ObservationDims, upper), env.Continuous)
}

// DiscountSpec returns the discounting specification of the environment
func (l *LunarLander) DiscountSpec() env.Spec {
	d := mat.NewVecDense(1, []float64{l.discount})
	return env.NewSpec(mat.NewVecDense(1, nil), env.Discount, d, d,
		env.Continuous)
}

// contactListener tracks hull and leg contacts with the terrain
type contactListener struct {
	l *LunarLander
}

func (c *contactListener) touches(contact box2d.B2ContactInterface,
	body *box2d.B2Body) bool {
	return contact.GetFixtureA().GetBody() == body ||
		contact.GetFixtureB().GetBody() == body
}

func (c *contactListener) BeginContact(contact box2d.B2ContactInterface) {
	if c.touches(contact, c.l.lander) {
		c.l.crashed = true
	}
	for i, leg := range c.l.legs {
		if c.touches(contact, leg) {
			c.l.legContact[i] = true
		}
	}
}

func (c *contactListener) EndContact(contact box2d.B2ContactInterface) {
	for i, leg := range c.l.legs {
		if c.touches(contact, leg) {
			c.l.legContact[i] = false
		}
	}
}

func (c *contactListener) PreSolve(box2d.B2ContactInterface,
	box2d.B2Manifold) {
}

func (c *contactListener) PostSolve(box2d.B2ContactInterface,
	*box2d.B2ContactImpulse) {
}
