// Package plotter implements the plotter adapters (C9): blocks that bridge a
// graph signal into the telemetry bus, flattening composite values into one
// scalar Sample stream per component.
package plotter

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nimbusfly/graphctl/internal/block"
	"github.com/nimbusfly/graphctl/internal/bus/telemetrybus"
	"github.com/nimbusfly/graphctl/internal/graph"
	"github.com/nimbusfly/graphctl/internal/signal"
)

// ProtoPlotter consumes one graph signal and publishes one Sample per
// component (per signal.Plottable.Names()) to the telemetry bus on every
// step. It never writes a graph output; its only effect outside the block
// is the telemetry it emits.
type ProtoPlotter struct {
	name  string
	topic string
	kind  signal.Kind

	ports   *graph.Ports
	senders []*telemetrybus.Sender
}

// NewProtoPlotter returns a plotter block named name, consuming the signal
// wired to its "in" port and publishing under topic+suffix for each
// component suffix kind's Plottable.Names() reports.
func NewProtoPlotter(name, topic string, kind signal.Kind) *ProtoPlotter {
	return &ProtoPlotter{name: name, topic: topic, kind: kind}
}

// Name implements block.Block.
func (p *ProtoPlotter) Name() string { return p.name }

// Register implements block.Block.
func (p *ProtoPlotter) Register(b block.IOBuilder) {
	b.DeclareInput("in", p.kind)
	p.ports = b.(*graph.Ports)
}

// BindTelemetry registers one telemetry entry per component name with bus.
// Must be called once, after the plotter has been added to a graph.Builder
// (so Register has run) and before the telemetry bus is built.
func (p *ProtoPlotter) BindTelemetry(bus *telemetrybus.Builder, channelSize int) error {
	names := componentNames(p.kind)
	senders := make([]*telemetrybus.Sender, len(names))
	for i, suffix := range names {
		_, sender, err := bus.RegisterSignal(p.topic+suffix, channelSize)
		if err != nil {
			return err
		}
		senders[i] = sender
	}
	p.senders = senders
	return nil
}

// Step implements block.Block: reads the bound input, decomposes it into
// scalar components, and publishes one Sample per component.
func (p *ProtoPlotter) Step(info block.StepInfo) (block.StepResult, error) {
	var values []float64
	switch p.kind {
	case signal.KindFloat64:
		v, err := p.ports.ReadFloat64("in")
		if err != nil {
			return block.Stop, err
		}
		values = signal.Float64(v).Values()
	case signal.KindVector3:
		v, err := p.ports.ReadVector3("in")
		if err != nil {
			return block.Stop, err
		}
		values = v.Values()
	}
	for i, sender := range p.senders {
		sender.Send(info.T, values[i])
	}
	return block.Continue, nil
}

func componentNames(kind signal.Kind) []string {
	switch kind {
	case signal.KindVector3:
		return signal.Vector3{}.Names()
	default:
		return signal.Float64(0).Names()
	}
}

var syntheticCounter atomic.Uint64

// AddProtoPlotter is the convenience spec.md §4.9 calls add_protoplotter: it
// wires a ProtoPlotter for signalName into b under a unique synthetic block
// name and registers its telemetry entries with busBuilder.
func AddProtoPlotter(b *graph.Builder, busBuilder *telemetrybus.Builder, signalName string, kind signal.Kind, channelSize int) error {
	idx := syntheticCounter.Add(1)
	blockName := fmt.Sprintf("__plotter_%s_%d", sanitize(signalName), idx)

	p := NewProtoPlotter(blockName, signalName, kind)
	if err := b.AddBlock(p, map[string]string{"in": signalName}, nil); err != nil {
		return err
	}
	return p.BindTelemetry(busBuilder, channelSize)
}

func sanitize(name string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(strings.TrimPrefix(name, "/"))
}
