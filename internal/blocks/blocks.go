// Package blocks provides the worked example blocks (A5): a constant
// source, a unit delay, a PID controller, and a cart plant integrated with
// RK4.
package blocks

import (
	"github.com/nimbusfly/graphctl/internal/block"
	"github.com/nimbusfly/graphctl/internal/graph"
	"github.com/nimbusfly/graphctl/internal/numeric"
	"github.com/nimbusfly/graphctl/internal/signal"
)

// Constant is a pure source emitting a fixed value on its single output
// every step.
type Constant struct {
	name  string
	value float64
	ports *graph.Ports
}

// NewConstant returns a source block named name emitting value forever.
func NewConstant(name string, value float64) *Constant {
	return &Constant{name: name, value: value}
}

func (c *Constant) Name() string { return c.name }

func (c *Constant) Register(b block.IOBuilder) {
	b.DeclareOutput("out", signal.KindFloat64)
	c.ports = b.(*graph.Ports)
}

func (c *Constant) Step(block.StepInfo) (block.StepResult, error) {
	return block.Continue, c.ports.WriteFloat64("out", c.value)
}

// Delay is the unit-delay element (spec.md §3/§4.3): its output at step k
// equals its input at step k-1, with initial configured at k=0.
type Delay struct {
	name    string
	last    float64
	ports   *graph.Ports
}

// NewDelay returns a delay block named name with the given initial value.
func NewDelay(name string, initial float64) *Delay {
	return &Delay{name: name, last: initial}
}

func (d *Delay) Name() string   { return d.name }
func (d *Delay) IsDelay() bool { return true }

func (d *Delay) Register(b block.IOBuilder) {
	b.DeclareInput("in", signal.KindFloat64)
	b.DeclareOutput("out", signal.KindFloat64)
	d.ports = b.(*graph.Ports)
}

// Step emits the value latched from the previous step (the initial value at
// k=0). It never reads "in" — the delay may run before its own producer in
// topological order, since delay-input edges are excluded from cycle
// detection; see Latch.
func (d *Delay) Step(block.StepInfo) (block.StepResult, error) {
	return block.Continue, d.ports.WriteFloat64("out", d.last)
}

// Latch reads "in" and stores it for the next step's output. Called by the
// driver after every block has stepped, once this delay's producer is
// guaranteed to have written this step.
func (d *Delay) Latch() error {
	v, err := d.ports.ReadFloat64("in")
	if err != nil {
		return err
	}
	d.last = v
	return nil
}

// PIDParams are a PID controller's tunable gains, persisted through
// internal/paramstore keyed by (section, block name).
type PIDParams struct {
	Kp float64 `toml:"kp"`
	Ki float64 `toml:"ki"`
	Kd float64 `toml:"kd"`
}

// PID is a standard PID controller over inputs "ref" (setpoint) and "meas"
// (measurement), writing its control effort to output "out".
type PID struct {
	name   string
	params PIDParams

	integral float64
	prevErr  float64
	hasPrev  bool

	ports *graph.Ports
}

// NewPID returns a PID controller block named name with the given gains.
func NewPID(name string, params PIDParams) *PID {
	return &PID{name: name, params: params}
}

func (p *PID) Name() string { return p.name }

func (p *PID) Register(b block.IOBuilder) {
	b.DeclareInput("ref", signal.KindFloat64)
	b.DeclareInput("meas", signal.KindFloat64)
	b.DeclareOutput("out", signal.KindFloat64)
	p.ports = b.(*graph.Ports)
}

func (p *PID) Step(info block.StepInfo) (block.StepResult, error) {
	ref, err := p.ports.ReadFloat64("ref")
	if err != nil {
		return block.Stop, err
	}
	meas, err := p.ports.ReadFloat64("meas")
	if err != nil {
		return block.Stop, err
	}

	e := ref - meas
	p.integral += e * info.Dt

	derivative := 0.0
	if p.hasPrev && info.Dt > 0 {
		derivative = (e - p.prevErr) / info.Dt
	}
	p.prevErr = e
	p.hasPrev = true

	out := p.params.Kp*e + p.params.Ki*p.integral + p.params.Kd*derivative
	return block.Continue, p.ports.WriteFloat64("out", out)
}

// Cart is a configurable-mass point mass actuated by an input force,
// integrated with RK4 (numeric.RK4), exposing position and velocity
// outputs.
type Cart struct {
	name string
	mass float64

	pos, vel float64

	ports *graph.Ports
}

// NewCart returns a cart plant named name with the given mass and initial
// position/velocity.
func NewCart(name string, mass, pos0, vel0 float64) *Cart {
	return &Cart{name: name, mass: mass, pos: pos0, vel: vel0}
}

func (c *Cart) Name() string { return c.name }

func (c *Cart) Register(b block.IOBuilder) {
	b.DeclareInput("force", signal.KindFloat64)
	b.DeclareOutput("pos", signal.KindFloat64)
	b.DeclareOutput("vel", signal.KindFloat64)
	c.ports = b.(*graph.Ports)
}

func (c *Cart) Step(info block.StepInfo) (block.StepResult, error) {
	force, err := c.ports.ReadFloat64("force")
	if err != nil {
		return block.Stop, err
	}

	deriv := func(_ float64, x []float64) []float64 {
		return []float64{x[1], force / c.mass}
	}
	next := numeric.RK4(deriv, info.T, []float64{c.pos, c.vel}, info.Dt)
	c.pos, c.vel = next[0], next[1]

	if err := c.ports.WriteFloat64("pos", c.pos); err != nil {
		return block.Stop, err
	}
	return block.Continue, c.ports.WriteFloat64("vel", c.vel)
}
