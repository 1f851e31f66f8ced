package signal

import (
	"sort"
	"sync"

	"github.com/nimbusfly/graphctl/internal/errs"
)

// slot is the erased typed value cell the registry indexes by name.
type slot struct {
	kind        Kind
	producer    string
	consumerCnt int
	value       Value
	written     bool
}

// Registry maps signal names to typed slots. Binding (BindOutput/BindInput)
// happens only during single-threaded graph build; Write/Read happen once
// per step from the control thread. The mutex exists for defensive safety,
// not because concurrent access is a supported mode (spec.md §4.5/§5 treat
// both phases as single-threaded).
type Registry struct {
	mu    sync.Mutex
	slots map[string]*slot
	// order preserves the sequence signals were first referenced in, as
	// returned by Names.
	order []string
}

// NewRegistry returns an empty signal registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*slot)}
}

func (r *Registry) slotFor(name string) *slot {
	s, ok := r.slots[name]
	if !ok {
		s = &slot{}
		r.slots[name] = s
		r.order = append(r.order, name)
	}
	return s
}

// BindOutput registers name as produced by blockName with the given kind.
// Fails if a producer is already bound (DuplicateProducer) or the kind
// conflicts with a prior binding (TypeMismatch).
func (r *Registry) BindOutput(name string, kind Kind, blockName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slotFor(name)
	if s.producer != "" {
		return errs.New("signal/bind_output", errs.KindDuplicateProducer,
			errs.WithSignal(name), errs.WithBlock(blockName),
			errs.WithMessage("signal already has a producer: "+s.producer))
	}
	if s.consumerCnt > 0 && s.kind != kind {
		return errs.New("signal/bind_output", errs.KindTypeMismatch,
			errs.WithSignal(name), errs.WithBlock(blockName))
	}
	s.kind = kind
	s.producer = blockName
	return nil
}

// BindInput records blockName as a consumer of name with the given kind.
// Creates a placeholder slot if name is not yet known; the producer is
// verified to exist at Build() time, not here. Fails with TypeMismatch if the
// signal was already bound (as producer or consumer) to a different kind.
func (r *Registry) BindInput(name string, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slotFor(name)
	if (s.producer != "" || s.consumerCnt > 0) && s.kind != kind {
		return errs.New("signal/bind_input", errs.KindTypeMismatch, errs.WithSignal(name))
	}
	s.kind = kind
	s.consumerCnt++
	return nil
}

// Producer returns the block name bound as name's producer, and whether one
// exists.
func (r *Registry) Producer(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[name]
	if !ok || s.producer == "" {
		return "", false
	}
	return s.producer, true
}

// Names returns every known signal name in first-reference order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedNames returns every known signal name, lexicographically sorted, used
// where a deterministic-but-order-independent listing is wanted (diagnostics).
func (r *Registry) SortedNames() []string {
	out := r.Names()
	sort.Strings(out)
	return out
}

// ResetStep clears the written flag on every slot. Called by the step driver
// once at the start of every step so a stale read from a prior step surfaces
// as KindUnknownSignal instead of silently returning last step's value out
// of order. Delay blocks re-write their output from internal state on every
// Step call, so no slot needs to survive a reset.
func (r *Registry) ResetStep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		s.written = false
	}
}

// Write stores value under name. Called once per step by name's producer
// block. O(1): a single map lookup plus assignment.
func (r *Registry) Write(name string, value Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[name]
	if !ok {
		return errs.New("signal/write", errs.KindUnknownSignal, errs.WithSignal(name))
	}
	if value.Kind() != s.kind {
		return errs.New("signal/write", errs.KindTypeMismatch, errs.WithSignal(name))
	}
	s.value = value
	s.written = true
	return nil
}

// Read returns the current value of name. For ordinary signals this is the
// producer's write from the current step (the topological order guarantees
// it already ran); for a delay output this is the value its Step wrote from
// the latch captured at the end of the previous step (the delay may run
// before its own producer, since delay-input edges carry no ordering
// constraint — see graph.Driver.Step), so the same Read call serves both
// cases uniformly.
func (r *Registry) Read(name string) (Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[name]
	if !ok {
		return nil, errs.New("signal/read", errs.KindUnknownSignal, errs.WithSignal(name))
	}
	if !s.written {
		return nil, errs.New("signal/read", errs.KindUnknownSignal, errs.WithSignal(name),
			errs.WithMessage("read before first write"))
	}
	return s.value, nil
}
