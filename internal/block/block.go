// Package block defines the uniform block contract every graph participant
// implements: a name, a port declaration step, and a per-tick step function.
package block

import (
	"github.com/nimbusfly/graphctl/internal/signal"
)

// StepInfo carries the current simulated time to a block's Step call.
type StepInfo struct {
	T  float64
	K  uint64
	Dt float64
}

// StepResult is the outcome of one Step invocation.
type StepResult int

const (
	// Continue tells the driver to proceed to the next step.
	Continue StepResult = iota
	// Stop tells the driver to halt gracefully after this step.
	Stop
)

// IOBuilder is how a block declares its fixed port surface during Register.
// Its concrete implementation (graph.Ports) is also the handle a block uses
// at step time to read bound inputs and write bound outputs, looking each
// signal up by its bound name.
type IOBuilder interface {
	// DeclareInput reserves an input port of the given kind under portName.
	DeclareInput(portName string, kind signal.Kind)
	// DeclareOutput reserves an output port of the given kind under portName.
	DeclareOutput(portName string, kind signal.Kind)
}

// Block is the uniform contract every graph participant implements: pure
// sources (no inputs), pure sinks (no outputs), stateful filters, delay
// elements, and plotter taps all satisfy this interface.
type Block interface {
	// Name returns the block's unique identity within a graph.
	Name() string
	// Register declares the block's input and output port names and kinds.
	Register(b IOBuilder)
	// Step reads all bound inputs, computes, and writes all bound outputs.
	// Returning a non-nil error annotates the failure with this block's name
	// and halts the driver (errs.KindBlockStep).
	Step(info StepInfo) (StepResult, error)
}

// Delay marks a block variant that breaks feedback cycles: its output at
// step k equals its input at step k-1, with a configured initial value at
// k=0. The graph builder treats a Delay's declared outputs as available
// before its inputs are produced, so edges into a Delay's inputs never
// participate in cycle detection — a Delay can therefore be ordered before
// its own producer. Step must only emit the latched value; Latch is called
// by the driver after every block has stepped, once the producer's write for
// the current step is guaranteed to exist, and captures that value for the
// next step's output.
type Delay interface {
	Block
	// IsDelay is a marker distinguishing delay elements from ordinary blocks
	// without requiring a type switch against a concrete struct.
	IsDelay() bool
	// Latch reads the current step's input and stores it as the value Step
	// will emit next step. Called once per step, after every block (in
	// particular the Delay's own producer) has run.
	Latch() error
}
