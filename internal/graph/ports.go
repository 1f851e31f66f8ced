package graph

import (
	"github.com/nimbusfly/graphctl/internal/errs"
	"github.com/nimbusfly/graphctl/internal/signal"
)

// portDecl is a block's declared port, filled in with the bound signal name
// once the builder resolves the block's wiring maps.
type portDecl struct {
	kind       signal.Kind
	signalName string
	bound      bool
}

// Ports is the concrete block.IOBuilder every block receives at Register and
// retains for use inside Step. Each port keeps the name of the signal it was
// bound to; Step-time reads and writes look the slot up in the registry by
// that name on every call, and a write boxes the value into a signal.Value.
// Ports hold no direct slot reference.
type Ports struct {
	blockName string
	reg       *signal.Registry
	inputs    map[string]*portDecl
	outputs   map[string]*portDecl
}

func newPorts(blockName string, reg *signal.Registry) *Ports {
	return &Ports{
		blockName: blockName,
		reg:       reg,
		inputs:    make(map[string]*portDecl),
		outputs:   make(map[string]*portDecl),
	}
}

// DeclareInput implements block.IOBuilder.
func (p *Ports) DeclareInput(portName string, kind signal.Kind) {
	p.inputs[portName] = &portDecl{kind: kind}
}

// DeclareOutput implements block.IOBuilder.
func (p *Ports) DeclareOutput(portName string, kind signal.Kind) {
	p.outputs[portName] = &portDecl{kind: kind}
}

func (p *Ports) bindInput(portName, signalName string) error {
	d, ok := p.inputs[portName]
	if !ok {
		return errs.New("graph/bind_input", errs.KindUnknownPort,
			errs.WithBlock(p.blockName), errs.WithMessage("no declared input port "+portName))
	}
	if err := p.reg.BindInput(signalName, d.kind); err != nil {
		return err
	}
	d.signalName = signalName
	d.bound = true
	return nil
}

func (p *Ports) bindOutput(portName, signalName string) error {
	d, ok := p.outputs[portName]
	if !ok {
		return errs.New("graph/bind_output", errs.KindUnknownPort,
			errs.WithBlock(p.blockName), errs.WithMessage("no declared output port "+portName))
	}
	if err := p.reg.BindOutput(signalName, d.kind, p.blockName); err != nil {
		return err
	}
	d.signalName = signalName
	d.bound = true
	return nil
}

// ReadFloat64 returns the current value bound to the named input port.
func (p *Ports) ReadFloat64(portName string) (float64, error) {
	d, err := p.resolveBoundInput(portName, signal.KindFloat64)
	if err != nil {
		return 0, err
	}
	v, err := p.reg.Read(d.signalName)
	if err != nil {
		return 0, err
	}
	return float64(v.(signal.Float64)), nil
}

// WriteFloat64 stores v under the named output port's bound signal.
func (p *Ports) WriteFloat64(portName string, v float64) error {
	d, err := p.resolveBoundOutput(portName, signal.KindFloat64)
	if err != nil {
		return err
	}
	return p.reg.Write(d.signalName, signal.Float64(v))
}

// ReadVector3 returns the current value bound to the named input port.
func (p *Ports) ReadVector3(portName string) (signal.Vector3, error) {
	d, err := p.resolveBoundInput(portName, signal.KindVector3)
	if err != nil {
		return signal.Vector3{}, err
	}
	v, err := p.reg.Read(d.signalName)
	if err != nil {
		return signal.Vector3{}, err
	}
	return v.(signal.Vector3), nil
}

// WriteVector3 stores v under the named output port's bound signal.
func (p *Ports) WriteVector3(portName string, v signal.Vector3) error {
	d, err := p.resolveBoundOutput(portName, signal.KindVector3)
	if err != nil {
		return err
	}
	return p.reg.Write(d.signalName, v)
}

func (p *Ports) resolveBoundInput(portName string, kind signal.Kind) (*portDecl, error) {
	d, ok := p.inputs[portName]
	if !ok || !d.bound {
		return nil, errs.New("graph/read", errs.KindUnknownPort,
			errs.WithBlock(p.blockName), errs.WithMessage("input port not bound: "+portName))
	}
	if d.kind != kind {
		return nil, errs.New("graph/read", errs.KindTypeMismatch, errs.WithBlock(p.blockName))
	}
	return d, nil
}

func (p *Ports) resolveBoundOutput(portName string, kind signal.Kind) (*portDecl, error) {
	d, ok := p.outputs[portName]
	if !ok || !d.bound {
		return nil, errs.New("graph/write", errs.KindUnknownPort,
			errs.WithBlock(p.blockName), errs.WithMessage("output port not bound: "+portName))
	}
	if d.kind != kind {
		return nil, errs.New("graph/write", errs.KindTypeMismatch, errs.WithBlock(p.blockName))
	}
	return d, nil
}

// inputSignalNames returns the bound signal name for every declared input.
func (p *Ports) inputSignalNames() []string {
	names := make([]string, 0, len(p.inputs))
	for _, d := range p.inputs {
		if d.bound {
			names = append(names, d.signalName)
		}
	}
	return names
}
