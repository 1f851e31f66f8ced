package fanout

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nimbusfly/graphctl/internal/bus/telemetrybus"
	"github.com/nimbusfly/graphctl/internal/telemetry/codec"
)

func listenAndDial(t *testing.T) (*net.UDPConn, *net.UDPConn) {
	t.Helper()
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	client, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return server, client
}

func TestFanoutDeliversSamplesToSubscriber(t *testing.T) {
	b := telemetrybus.NewBuilder()
	_, sender, err := b.RegisterSignal("/cart/pos", 8)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	bus := b.Build()

	actor := New(bus, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	server, client := listenAndDial(t)
	_ = server

	if err := actor.Subscribe(ctx, "c1", client, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if actor.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", actor.SubscriberCount())
	}

	sender.Send(1.0, 15.0)

	buf := make([]byte, 64)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	id, tm, value, err := codec.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != 0 || tm != 1.0 || value != 15.0 {
		t.Fatalf("unexpected sample: id=%d t=%v value=%v", id, tm, value)
	}

	if err := actor.Unsubscribe(ctx, "c1"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if actor.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", actor.SubscriberCount())
	}
}

func TestFanoutHonorsIDFilter(t *testing.T) {
	b := telemetrybus.NewBuilder()
	_, senderA, err := b.RegisterSignal("/a", 8)
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	idB, senderB, err := b.RegisterSignal("/b", 8)
	if err != nil {
		t.Fatalf("register b: %v", err)
	}
	bus := b.Build()

	actor := New(bus, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	server, client := listenAndDial(t)

	if err := actor.Subscribe(ctx, "c1", client, []telemetrybus.TelemetryID{idB}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	senderA.Send(0, 1) // filtered out
	senderB.Send(0, 2) // should arrive

	buf := make([]byte, 64)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	id, _, value, err := codec.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != uint64(idB) || value != 2 {
		t.Fatalf("expected filtered sample from /b, got id=%d value=%v", id, value)
	}
}
