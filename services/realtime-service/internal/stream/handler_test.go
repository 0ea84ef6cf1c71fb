package stream

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nabil-hossain/ridepulse/libs/auth"
	"github.com/nabil-hossain/ridepulse/services/realtime-service/internal/registry"
)

const testSecret = "stream-test-secret"

func signToken(t *testing.T, role, sub string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.Claims{
		Sub:  sub,
		Role: role,
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return token
}

func newTestHandler(heartbeat time.Duration) (*Handler, *registry.Registry) {
	logger := slog.New(slog.DiscardHandler)
	reg := registry.New(logger)
	return NewHandler(reg, testSecret, heartbeat, logger), reg
}

func TestConnectWithoutResolvableIdentityIsRejected(t *testing.T) {
	h, reg := newTestHandler(time.Minute)

	cases := map[string]*http.Request{
		"no token":     httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil),
		"bad token":    httptest.NewRequest(http.MethodGet, "/api/v1/stream?token=garbage", nil),
		"unknown role": httptest.NewRequest(http.MethodGet, "/api/v1/stream?token="+signToken(t, "ADMIN", "A1"), nil),
	}
	for name, req := range cases {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rw.Code)
		}
	}

	if identities, _ := reg.Stats(); identities != 0 {
		t.Fatalf("rejected connects must not touch the registry, got %d identities", identities)
	}
}

func TestStreamDeliversBroadcastEvents(t *testing.T) {
	h, reg := newTestHandler(time.Minute)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+signToken(t, auth.RoleDriver, "D1"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("unexpected cache control %q", cc)
	}

	reader := bufio.NewReader(resp.Body)
	if line := readLine(t, reader); line != "event: connected" {
		t.Fatalf("expected greeting event, got %q", line)
	}
	// data line + blank separator of the greeting.
	readLine(t, reader)
	readLine(t, reader)

	driver := auth.Identity{Role: auth.RoleDriver, ID: "D1"}
	waitFor(t, func() bool { return reg.ConnectionsFor(driver) == 1 })

	if n := reg.Broadcast(driver, registry.Event{Name: "ride_offer_cancelled", Data: []byte(`{"bookingId":"B1"}`)}); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}

	if line := readLine(t, reader); line != "event: ride_offer_cancelled" {
		t.Fatalf("unexpected event line %q", line)
	}
	if line := readLine(t, reader); line != `data: {"bookingId":"B1"}` {
		t.Fatalf("unexpected data line %q", line)
	}

	cancel()
	waitFor(t, func() bool { return reg.ConnectionsFor(driver) == 0 })
}

func TestStreamHeartbeat(t *testing.T) {
	h, _ := newTestHandler(20 * time.Millisecond)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?token="+signToken(t, auth.RoleUser, "U1"), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line := readLine(t, reader)
		if strings.HasPrefix(line, ": ping") {
			return
		}
	}
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read line failed: %v", err)
	}
	return strings.TrimRight(line, "\n")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
