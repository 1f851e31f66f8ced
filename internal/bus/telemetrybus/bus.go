// Package telemetrybus implements the in-process telemetry bus (C6): named
// streams with their own bounded queue, non-blocking try-send on the
// producer side, and a single unified sample stream handed to the fan-out
// actor (C8).
package telemetrybus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nimbusfly/graphctl/internal/errs"
)

// TelemetryID is a dense id assigned monotonically from 0 by the builder,
// stable for the process lifetime once assigned.
type TelemetryID uint64

// Sample is one published value: the control thread's t, the telemetry id,
// and the scalar value (composite signals are decomposed before reaching
// the bus — see internal/plotter).
type Sample struct {
	ID    TelemetryID
	Time  float64
	Value float64
}

// Entry is a registered (id, name, bounded-queue) triple. The entry set is
// frozen once Builder.Build is called.
type Entry struct {
	ID    TelemetryID
	Name  string
	queue chan Sample
	drops atomic.Uint64
}

// Drops returns the number of samples silently dropped because this entry's
// queue was full when a producer tried to send.
func (e *Entry) Drops() uint64 { return e.drops.Load() }

// Sender is the producer-side handle a graph block uses to publish. Send
// never blocks: on a full queue the sample is dropped and the entry's drop
// counter increments.
type Sender struct {
	entry *Entry
}

// Send publishes value at time t. Never blocks.
func (s *Sender) Send(t float64, value float64) {
	sample := Sample{ID: s.entry.ID, Time: t, Value: value}
	select {
	case s.entry.queue <- sample:
	default:
		s.entry.drops.Add(1)
	}
}

// Builder accumulates telemetry entries during graph build. Registration is
// only valid before Build is called.
type Builder struct {
	mu      sync.Mutex
	entries []*Entry
	byName  map[string]*Entry
	built   bool
}

// NewBuilder returns an empty telemetry bus builder.
func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]*Entry)}
}

// RegisterSignal reserves a bounded FIFO of channelSize samples under name,
// returning its dense TelemetryID and a sender handle. Fails with
// KindInvalidChannelName on an empty or duplicate name, or KindUnavailable
// if the bus has already been built.
func (b *Builder) RegisterSignal(name string, channelSize int) (TelemetryID, *Sender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return 0, nil, errs.New("telemetrybus/register_signal", errs.KindUnavailable,
			errs.WithMessage("bus already built"))
	}
	if strings.TrimSpace(name) == "" {
		return 0, nil, errs.New("telemetrybus/register_signal", errs.KindInvalidChannelName,
			errs.WithMessage("name must not be empty"))
	}
	if _, exists := b.byName[name]; exists {
		return 0, nil, errs.New("telemetrybus/register_signal", errs.KindInvalidChannelName,
			errs.WithMessage("duplicate telemetry name: "+name))
	}
	if channelSize <= 0 {
		channelSize = 1
	}

	id := TelemetryID(len(b.entries))
	e := &Entry{ID: id, Name: name, queue: make(chan Sample, channelSize)}
	b.entries = append(b.entries, e)
	b.byName[name] = e
	return id, &Sender{entry: e}, nil
}

// Build freezes the entry set and returns the bus handed to C7/C8. No
// further registration is possible on this builder.
func (b *Builder) Build() *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.built = true

	entries := make([]*Entry, len(b.entries))
	copy(entries, b.entries)
	byName := make(map[string]*Entry, len(b.byName))
	for k, v := range b.byName {
		byName[k] = v
	}
	return &Bus{entries: entries, byName: byName}
}

// Bus is the immutable, frozen set of telemetry entries produced by Build.
type Bus struct {
	entries []*Entry
	byName  map[string]*Entry

	drainOnce sync.Once
	unified   chan Sample
}

// EntryInfo is a copyable {id, name} view of a registered telemetry entry,
// returned by ListTelemetries instead of Entry — Entry embeds an
// atomic.Uint64 drop counter and must never be copied by value.
type EntryInfo struct {
	ID   TelemetryID
	Name string
}

// ListTelemetries returns every entry whose name starts with baseTopic, in
// ascending TelemetryID order.
func (bus *Bus) ListTelemetries(baseTopic string) []EntryInfo {
	out := make([]EntryInfo, 0, len(bus.entries))
	for _, e := range bus.entries {
		if strings.HasPrefix(e.Name, baseTopic) {
			out = append(out, EntryInfo{ID: e.ID, Name: e.Name})
		}
	}
	return out
}

// EntryByID returns the frozen entry for id, if registered.
func (bus *Bus) EntryByID(id TelemetryID) (*Entry, bool) {
	for _, e := range bus.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Drain starts (once) a forwarder goroutine per entry, fanning every
// entry's queue into one unified sample channel, and returns that channel.
// This is the "unified sample receiver" the fan-out actor (C8) selects on;
// per-entry bounded queues stay independent, so a slow fan-out never backs
// up into the control thread's non-blocking Send calls — only that entry's
// own drop counter climbs. Forwarders stop when ctx is done.
func (bus *Bus) Drain(ctx context.Context) <-chan Sample {
	bus.drainOnce.Do(func() {
		bus.unified = make(chan Sample, len(bus.entries))
		for _, e := range bus.entries {
			go forward(ctx, e.queue, bus.unified)
		}
	})
	return bus.unified
}

func forward(ctx context.Context, from <-chan Sample, to chan<- Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-from:
			if !ok {
				return
			}
			select {
			case to <- sample:
			case <-ctx.Done():
				return
			}
		}
	}
}
