// Package control implements the telemetry control-plane service (C7):
// discovery (list_telemetries) and subscription (start_telemetry) RPC over
// HTTP+JSON (net/http mux, github.com/goccy/go-json encode/decode). See
// DESIGN.md for why this sits on HTTP+JSON rather than gRPC.
package control

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nimbusfly/graphctl/internal/bus/telemetrybus"
	"github.com/nimbusfly/graphctl/internal/telemetry/fanout"
)

// Default per-remote-IP new-subscription rate limit: a reconnect loop or a
// misbehaving client can otherwise open an unbounded number of Subscribe
// commands against the fan-out actor.
const (
	defaultSubscribeRate  = 2 // new subscriptions per second
	defaultSubscribeBurst = 5
)

// ListRequest is TelemetryListRequest from spec.md §6.
type ListRequest struct {
	BaseTopic string `json:"base_topic"`
}

// TelemetryInfo is one entry in a ListReply.
type TelemetryInfo struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// ListReply is TelemetryListReply from spec.md §6.
type ListReply struct {
	Telemetries []TelemetryInfo `json:"telemetries"`
}

// StartRequest is StartTelemetryRequest from spec.md §6. Port is a uint32 on
// the wire so an out-of-range value can be represented and rejected with
// BadPort rather than silently truncated.
type StartRequest struct {
	IDs  []uint64 `json:"ids"`
	Port uint32   `json:"port"`
}

// StopReason mirrors the wire enum in spec.md §6.
type StopReason string

const (
	StopReasonTelemetryEnded StopReason = "TelemetryEnded"
	StopReasonBadPort        StopReason = "BadPort"
)

// StartReply is StartTelemetryReply from spec.md §6.
type StartReply struct {
	StopReason StopReason `json:"stop_reason"`
}

// Server is the C7 control service. It holds the frozen telemetry bus (for
// discovery) and the C8 fan-out actor (to inject Subscribe/Unsubscribe).
type Server struct {
	bus   *telemetrybus.Bus
	actor *fanout.Actor

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewServer returns a control-plane server over bus and actor.
func NewServer(bus *telemetrybus.Bus, actor *fanout.Actor) *Server {
	return &Server{bus: bus, actor: actor, limiters: make(map[string]*rate.Limiter)}
}

// allowSubscribe reports whether remoteIP may open another subscription
// right now, consuming one token from its per-IP limiter if so. Limiters
// are created lazily and kept for the server's lifetime; the set is small
// (one entry per distinct client IP that has ever subscribed).
func (s *Server) allowSubscribe(remoteIP string) bool {
	s.limiterMu.Lock()
	lim, ok := s.limiters[remoteIP]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(defaultSubscribeRate), defaultSubscribeBurst)
		s.limiters[remoteIP] = lim
	}
	s.limiterMu.Unlock()
	return lim.Allow()
}

// Handler returns the net/http handler exposing /telemetry/list and
// /telemetry/start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/telemetry/list", s.handleList)
	mux.HandleFunc("/telemetry/start", s.handleStart)
	return mux
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req ListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	entries := s.bus.ListTelemetries(req.BaseTopic)
	reply := ListReply{Telemetries: make([]TelemetryInfo, len(entries))}
	for i, e := range entries {
		reply.Telemetries[i] = TelemetryInfo{ID: uint64(e.ID), Name: e.Name}
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleStart is long-lived: on a valid port it blocks until the request
// context ends (r.Context().Done(), i.e. the client disconnects), then
// unsubscribes and replies. http.Server.Shutdown does not end that context,
// so a pending call is not woken by server shutdown alone.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if req.Port > 65535 {
		writeJSON(w, http.StatusOK, StartReply{StopReason: StopReasonBadPort})
		return
	}

	remoteIP, err := observedIP(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not determine remote address")
		return
	}

	if !s.allowSubscribe(remoteIP.String()) {
		writeError(w, http.StatusTooManyRequests, "subscription rate limit exceeded for this client")
		return
	}

	destAddr := &net.UDPAddr{IP: remoteIP, Port: int(req.Port)}
	conn, err := net.DialUDP("udp", nil, destAddr)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "could not open sample socket")
		return
	}

	ids := make([]telemetrybus.TelemetryID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = telemetrybus.TelemetryID(id)
	}
	key := fanout.SubscriberKey(destAddr.String())
	sessionID := uuid.NewString()

	ctx := r.Context()
	if err := s.actor.Subscribe(ctx, key, conn, ids); err != nil {
		_ = conn.Close()
		writeError(w, http.StatusServiceUnavailable, "could not register subscriber")
		return
	}
	slog.Info("telemetry subscription started", "session", sessionID, "destination", destAddr.String(), "ids", ids)

	<-ctx.Done()

	unsubCtx, cancel := detachedContext()
	defer cancel()
	_ = s.actor.Unsubscribe(unsubCtx, key)
	slog.Info("telemetry subscription ended", "session", sessionID, "destination", destAddr.String())

	writeJSON(w, http.StatusOK, StartReply{StopReason: StopReasonTelemetryEnded})
}

func observedIP(r *http.Request) (net.IP, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, &net.ParseError{Type: "IP address", Text: host}
	}
	return ip, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// detachedContext gives the Unsubscribe call issued after a client's RPC
// context is already canceled somewhere to run: a short-lived context not
// tied to the request that just ended.
func detachedContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
