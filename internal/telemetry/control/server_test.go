package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nimbusfly/graphctl/internal/bus/telemetrybus"
	"github.com/nimbusfly/graphctl/internal/telemetry/fanout"
)

func newTestServer(t *testing.T) (*Server, *telemetrybus.Bus, *fanout.Actor) {
	t.Helper()
	b := telemetrybus.NewBuilder()
	for _, n := range []string{"/a", "/a/b", "/c"} {
		if _, _, err := b.RegisterSignal(n, 4); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}
	bus := b.Build()
	actor := fanout.New(bus, 4)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go actor.Run(ctx)
	return NewServer(bus, actor), bus, actor
}

func TestHandleListReturnsPrefixMatches(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(ListRequest{BaseTopic: "/a"})
	resp, err := http.Post(ts.URL+"/telemetry/list", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var reply ListReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reply.Telemetries) != 2 {
		t.Fatalf("expected 2 telemetries, got %d: %v", len(reply.Telemetries), reply.Telemetries)
	}
}

func TestHandleStartRejectsExcessSubscriptionRate(t *testing.T) {
	srv, _, actor := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Drain the per-IP burst allowance by calling allowSubscribe directly,
	// then confirm the next good request is throttled rather than
	// registering another subscriber.
	for i := 0; i < defaultSubscribeBurst; i++ {
		_ = srv.allowSubscribe("127.0.0.1")
	}

	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.LocalAddr().(*net.UDPAddr).Port
	listener.Close()

	body, _ := json.Marshal(StartRequest{Port: uint32(port)})
	resp, err := http.Post(ts.URL+"/telemetry/start", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if actor.SubscriberCount() != 0 {
		t.Fatalf("expected no subscriber registered when rate-limited, got %d", actor.SubscriberCount())
	}
}

func TestHandleStartRejectsBadPort(t *testing.T) {
	srv, _, actor := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(StartRequest{Port: 70000})
	resp, err := http.Post(ts.URL+"/telemetry/start", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var reply StartReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.StopReason != StopReasonBadPort {
		t.Fatalf("expected BadPort, got %v", reply.StopReason)
	}
	if actor.SubscriberCount() != 0 {
		t.Fatalf("expected no subscriber created for a bad port, got %d", actor.SubscriberCount())
	}
}

func TestHandleStartSubscribesAndUnsubscribesOnCancel(t *testing.T) {
	srv, _, actor := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// bind a throwaway local UDP listener on loopback to get a free port.
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.LocalAddr().(*net.UDPAddr).Port
	listener.Close()

	body, _ := json.Marshal(StartRequest{Port: uint32(port)})
	reqCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ts.URL+"/telemetry/start", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		var reply StartReply
		_ = json.NewDecoder(resp.Body).Decode(&reply)
		if reply.StopReason != StopReasonTelemetryEnded {
			t.Errorf("expected TelemetryEnded, got %v", reply.StopReason)
		}
	}()

	time.Sleep(200 * time.Millisecond)
	if actor.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber mid-call, got %d", actor.SubscriberCount())
	}

	cancel() // client disconnects
	<-done

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if actor.SubscriberCount() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected subscriber removed after cancellation, got %d", actor.SubscriberCount())
}
