// Package graph implements the graph builder, topological sort, and the
// fixed-step driver that executes a built graph (C3/C4 of the runtime).
package graph

import (
	"github.com/nimbusfly/graphctl/internal/block"
	"github.com/nimbusfly/graphctl/internal/errs"
	"github.com/nimbusfly/graphctl/internal/signal"
)

type entry struct {
	blk     block.Block
	ports   *Ports
	isDelay bool
}

// Builder accepts blocks and their port wiring, then resolves execution
// order on Build(). A Builder is used once and discarded; there is no
// re-wiring after Build (spec.md Non-goals).
type Builder struct {
	reg     *signal.Registry
	entries []*entry
	names   map[string]int
}

// NewBuilder returns an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		reg:   signal.NewRegistry(),
		names: make(map[string]int),
	}
}

// AddBlock registers blk under its own name with the given input and output
// port wiring (port name -> signal name). Rejects duplicate block names,
// unknown port names, duplicate producers, and type conflicts immediately;
// producer-existence for declared inputs is verified at Build().
func (b *Builder) AddBlock(blk block.Block, inputWiring, outputWiring map[string]string) error {
	name := blk.Name()
	if name == "" {
		return errs.New("graph/add_block", errs.KindDuplicateBlockName,
			errs.WithMessage("block name must not be empty"))
	}
	if _, dup := b.names[name]; dup {
		return errs.New("graph/add_block", errs.KindDuplicateBlockName,
			errs.WithBlock(name))
	}

	ports := newPorts(name, b.reg)
	blk.Register(ports)

	for port, sigName := range outputWiring {
		if err := ports.bindOutput(port, sigName); err != nil {
			return err
		}
	}
	for port, sigName := range inputWiring {
		if err := ports.bindInput(port, sigName); err != nil {
			return err
		}
	}

	isDelay := false
	if d, ok := blk.(block.Delay); ok {
		isDelay = d.IsDelay()
	}

	idx := len(b.entries)
	b.entries = append(b.entries, &entry{blk: blk, ports: ports, isDelay: isDelay})
	b.names[name] = idx
	return nil
}

// Build verifies every declared input has a producer, orders the non-delay
// edge subgraph topologically, and returns a driver ready to step. Fails
// with errs.KindCycle if a non-delay cycle remains, or errs.KindUnknownSignal
// if any input has no producer.
func (b *Builder) Build(params Params) (*Driver, error) {
	n := len(b.entries)
	var edges []edge

	for i, e := range b.entries {
		for _, sigName := range e.ports.inputSignalNames() {
			producerName, ok := b.reg.Producer(sigName)
			if !ok {
				return nil, errs.New("graph/build", errs.KindUnknownSignal,
					errs.WithBlock(e.blk.Name()), errs.WithSignal(sigName))
			}
			producerIdx, ok := b.names[producerName]
			if !ok {
				return nil, errs.New("graph/build", errs.KindUnknownSignal,
					errs.WithBlock(e.blk.Name()), errs.WithSignal(sigName))
			}
			if !e.isDelay {
				edges = append(edges, edge{from: producerIdx, to: i})
			}
		}
	}

	order, ok := topologicalSort(n, edges)
	if !ok {
		return nil, errs.New("graph/build", errs.KindCycle,
			errs.WithMessage("non-delay edge subgraph contains a cycle"))
	}

	ordered := make([]*entry, n)
	for pos, idx := range order {
		ordered[pos] = b.entries[idx]
	}

	return newDriver(ordered, b.reg, params), nil
}
