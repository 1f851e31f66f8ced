// Command telemetryclient is a minimal reference client for the telemetry
// control plane: it lists the registered telemetries under a base topic,
// starts a subscription, and prints the samples it receives over UDP.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"

	"github.com/nimbusfly/graphctl/internal/telemetry/codec"
	"github.com/nimbusfly/graphctl/internal/telemetry/control"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8090", "telemetry control-plane base URL")
	topic := flag.String("topic", "/", "base topic to list telemetries under")
	ids := flag.String("ids", "", "comma-separated telemetry IDs to subscribe to (empty = all)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "telemetryclient ", log.LstdFlags)

	client := &http.Client{Timeout: 10 * time.Second}

	listed, err := backoff.Retry(ctx, func() (control.ListReply, error) {
		return listTelemetries(ctx, client, *addr, *topic)
	}, backoff.WithMaxTries(5))
	if err != nil {
		logger.Fatalf("list telemetries: %v", err)
	}
	for _, t := range listed.Telemetries {
		logger.Printf("telemetry id=%d name=%s", t.ID, t.Name)
	}

	conn, localPort, err := listenUDP()
	if err != nil {
		logger.Fatalf("listen udp: %v", err)
	}
	defer conn.Close()

	go startSubscription(ctx, logger, client, *addr, parseIDs(*ids), localPort)

	logger.Printf("listening for samples on udp port %d", localPort)
	readSamples(ctx, logger, conn)
}

func listTelemetries(ctx context.Context, client *http.Client, addr, topic string) (control.ListReply, error) {
	body, err := json.Marshal(control.ListRequest{BaseTopic: topic})
	if err != nil {
		return control.ListReply{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/telemetry/list", bytes.NewReader(body))
	if err != nil {
		return control.ListReply{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return control.ListReply{}, err
	}
	defer resp.Body.Close()

	var reply control.ListReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return control.ListReply{}, err
	}
	return reply, nil
}

// startSubscription issues the long-lived start_telemetry RPC. It blocks
// until ctx is cancelled (the server unsubscribes once it observes the
// request context end) or the server ends the stream on its own.
func startSubscription(ctx context.Context, logger *log.Logger, client *http.Client, addr string, ids []uint64, localPort int) {
	body, err := json.Marshal(control.StartRequest{IDs: ids, Port: uint32(localPort)})
	if err != nil {
		logger.Printf("marshal start request: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/telemetry/start", bytes.NewReader(body))
	if err != nil {
		logger.Printf("build start request: %v", err)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			logger.Printf("start telemetry: %v", err)
		}
		return
	}
	defer resp.Body.Close()

	var reply control.StartReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		logger.Printf("decode start reply: %v", err)
		return
	}
	logger.Printf("telemetry stream ended: %s", reply.StopReason)
}

func listenUDP() (*net.UDPConn, int, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("0.0.0.0")})
	if err != nil {
		return nil, 0, err
	}
	return conn, conn.LocalAddr().(*net.UDPAddr).Port, nil
}

func readSamples(ctx context.Context, logger *log.Logger, conn *net.UDPConn) {
	buf := make([]byte, codec.SampleSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			logger.Printf("read sample: %v", err)
			continue
		}
		id, t, value, err := codec.Decode(buf[:n])
		if err != nil {
			logger.Printf("decode sample: %v", err)
			continue
		}
		fmt.Printf("id=%d t=%.4f value=%.6f\n", id, t, value)
	}
}

func parseIDs(raw string) []uint64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	return ids
}
