// Package fanout implements the telemetry data fan-out actor (C8): a
// single-threaded cooperative loop that drains the telemetry bus's unified
// sample stream and forwards each sample to every current subscriber over
// UDP, honoring per-subscriber id filters and isolating send failures.
// Uses a bounded sourcegraph/conc/pool for per-subscriber fan-out with
// failure isolation, broadcasting over UDP rather than an in-process bus.
package fanout

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/nimbusfly/graphctl/internal/bus/telemetrybus"
	"github.com/nimbusfly/graphctl/internal/telemetry/codec"
)

// SubscriberKey identifies a subscriber by its sample destination address.
type SubscriberKey string

type subscribeCmd struct {
	key  SubscriberKey
	conn *net.UDPConn
	ids  map[telemetrybus.TelemetryID]struct{}
	done chan struct{}
}

type unsubscribeCmd struct {
	key  SubscriberKey
	done chan struct{}
}

type subscriberState struct {
	conn *net.UDPConn
	ids  map[telemetrybus.TelemetryID]struct{}
}

func (s *subscriberState) accepts(id telemetrybus.TelemetryID) bool {
	if len(s.ids) == 0 {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// Actor is the C8 fan-out actor. Construct with New, then run it with Run in
// its own goroutine for the lifetime of the telemetry runtime.
type Actor struct {
	bus        *telemetrybus.Bus
	maxWorkers int
	commands   chan interface{}

	subscriberCount atomic.Int64
}

// New returns a fan-out actor over bus. maxWorkers bounds the per-sample
// concurrent subscriber sends; 0 picks a small sensible default.
func New(bus *telemetrybus.Bus, maxWorkers int) *Actor {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Actor{
		bus:        bus,
		maxWorkers: maxWorkers,
		commands:   make(chan interface{}),
	}
}

// SubscriberCount reports the number of currently active subscribers,
// exposed for diagnostics/metrics only — never read by the control thread.
func (a *Actor) SubscriberCount() int64 { return a.subscriberCount.Load() }

// Subscribe injects a Subscribe command and blocks until the actor has
// applied it (or ctx is done). ids is the filter from start_telemetry: empty
// means "all registered telemetries".
func (a *Actor) Subscribe(ctx context.Context, key SubscriberKey, conn *net.UDPConn, ids []telemetrybus.TelemetryID) error {
	idSet := make(map[telemetrybus.TelemetryID]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	cmd := subscribeCmd{key: key, conn: conn, ids: idSet, done: make(chan struct{})}
	select {
	case a.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe injects an Unsubscribe command and blocks until applied.
func (a *Actor) Unsubscribe(ctx context.Context, key SubscriberKey) error {
	cmd := unsubscribeCmd{key: key, done: make(chan struct{})}
	select {
	case a.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the actor's cooperative loop: it drains the bus's unified sample
// stream and the command channel until ctx is canceled. Call it once, from
// its own goroutine.
func (a *Actor) Run(ctx context.Context) {
	samples := a.bus.Drain(ctx)
	subscribers := make(map[SubscriberKey]*subscriberState)
	var encodeBuf []byte

	defer func() {
		for _, s := range subscribers {
			_ = s.conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.commands:
			switch c := cmd.(type) {
			case subscribeCmd:
				subscribers[c.key] = &subscriberState{conn: c.conn, ids: c.ids}
				a.subscriberCount.Store(int64(len(subscribers)))
				close(c.done)
			case unsubscribeCmd:
				if s, ok := subscribers[c.key]; ok {
					delete(subscribers, c.key)
					_ = s.conn.Close()
					a.subscriberCount.Store(int64(len(subscribers)))
				}
				close(c.done)
			}
		case sample := <-samples:
			encodeBuf = a.dispatch(sample, subscribers, encodeBuf)
		}
	}
}

func (a *Actor) dispatch(sample telemetrybus.Sample, subscribers map[SubscriberKey]*subscriberState, buf []byte) []byte {
	if len(subscribers) == 0 {
		return buf
	}
	buf = codec.Encode(buf, uint64(sample.ID), sample.Time, sample.Value)
	payload := buf[:codec.SampleSize]

	if len(subscribers) == 1 {
		for _, s := range subscribers {
			sendBestEffort(s, sample.ID, payload)
		}
		return buf
	}

	workers := a.maxWorkers
	if workers > len(subscribers) {
		workers = len(subscribers)
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, s := range subscribers {
		s := s
		p.Go(func() {
			sendBestEffort(s, sample.ID, payload)
		})
	}
	p.Wait()
	return buf
}

// sendBestEffort writes payload to s's socket if s accepts id. Send failures
// are ignored per spec.md §4.8: they are local to this subscriber and never
// drop the subscription or affect any other subscriber.
func sendBestEffort(s *subscriberState, id telemetrybus.TelemetryID, payload []byte) {
	if !s.accepts(id) {
		return
	}
	_, _ = s.conn.Write(payload)
}
