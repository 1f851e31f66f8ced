package graph

import (
	"github.com/nimbusfly/graphctl/internal/block"
	"github.com/nimbusfly/graphctl/internal/errs"
	"github.com/nimbusfly/graphctl/internal/signal"
)

// Params are the fixed graph parameters: sample period and an optional
// iteration ceiling. MaxIter == 0 means unbounded.
type Params struct {
	Dt      float64
	MaxIter uint64
}

// Driver owns the resolved execution order and drives it at a fixed step.
// It does not sleep; pacing to wall-clock is the embedding application's
// concern.
type Driver struct {
	ordered []*entry
	reg     *signal.Registry
	params  Params

	k        uint64
	stopped  bool
}

func newDriver(ordered []*entry, reg *signal.Registry, params Params) *Driver {
	return &Driver{ordered: ordered, reg: reg, params: params}
}

// Registry exposes the bound signal registry, used by plotter adapters (C9)
// to read the values blocks just wrote.
func (d *Driver) Registry() *signal.Registry {
	return d.reg
}

// Step runs one pass over every block in topological order at the driver's
// current time, then latches every delay element's input for next step's
// output. Returns block.Stop once the driver has terminated (either a block
// requested it or max_iter was reached); subsequent calls are no-ops that
// keep returning block.Stop.
func (d *Driver) Step() (block.StepResult, error) {
	if d.stopped {
		return block.Stop, nil
	}

	d.reg.ResetStep()

	info := block.StepInfo{T: float64(d.k) * d.params.Dt, K: d.k, Dt: d.params.Dt}
	for _, e := range d.ordered {
		result, err := e.blk.Step(info)
		if err != nil {
			d.stopped = true
			return block.Stop, errs.New("graph/step", errs.KindBlockStep,
				errs.WithBlock(e.blk.Name()), errs.WithCause(err))
		}
		if result == block.Stop {
			d.stopped = true
			return block.Stop, nil
		}
	}

	// Delay-input edges are excluded from the topological order (§4.3), so a
	// delay element may have stepped before its own producer. Only now, once
	// every block — including that producer — has written this step, is it
	// safe to latch the delay's input for the value it will emit next step.
	for _, e := range d.ordered {
		if !e.isDelay {
			continue
		}
		if err := e.blk.(block.Delay).Latch(); err != nil {
			d.stopped = true
			return block.Stop, errs.New("graph/step", errs.KindBlockStep,
				errs.WithBlock(e.blk.Name()), errs.WithCause(err))
		}
	}

	d.k++
	if d.params.MaxIter != 0 && d.k >= d.params.MaxIter {
		d.stopped = true
		return block.Stop, nil
	}
	return block.Continue, nil
}

// Run steps the driver until it returns block.Stop or an error.
func (d *Driver) Run() error {
	for {
		result, err := d.Step()
		if err != nil {
			return err
		}
		if result == block.Stop {
			return nil
		}
	}
}
