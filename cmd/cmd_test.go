package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
	"github.com/nextlevelbuilder/pairlink/internal/config"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

func TestFormatActionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid_phone", fmt.Errorf("%w (got 9)", pairing.ErrInvalidPhone), "Invalid phone number"},
		{"rate_limited", pairing.ErrRateLimited, "Too many pairing code requests"},
		{"rejected_verbatim", &backend.RejectedError{Op: "confirm phone", Message: "Phone already in use"}, "Phone already in use"},
		{"refused", fmt.Errorf("status: %w: dial tcp: connection refused", backend.ErrTransport), "Backend unreachable"},
		{"timeout", fmt.Errorf("status: %w: context deadline exceeded", backend.ErrTransport), "timed out"},
		{"other_transport", fmt.Errorf("status: %w: unexpected status 502", backend.ErrTransport), "Backend unavailable"},
		{"cancelled", context.Canceled, "Cancelled."},
		{"plain", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatActionError(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("formatActionError() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "warn")
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", out, err)
	}
	if rec["msg"] != "shown" || rec["key"] != "value" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	newLogger(&buf, "text", "debug").Debug("dbg")
	if !strings.Contains(buf.String(), "msg=dbg") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestPhoneArgs(t *testing.T) {
	tests := []struct {
		args       []string
		wantPrefix string
		wantNumber string
	}{
		{nil, "84", ""},
		{[]string{"14155551234"}, "", "14155551234"},
		{[]string{"1", "4155551234"}, "1", "4155551234"},
	}
	for _, tt := range tests {
		p, n := phoneArgs(tt.args, "84")
		if p != tt.wantPrefix || n != tt.wantNumber {
			t.Errorf("phoneArgs(%v) = %q, %q; want %q, %q", tt.args, p, n, tt.wantPrefix, tt.wantNumber)
		}
	}
}

func TestRedactConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Token = "sk-0123456789abcdef"
	cfg.Server.Token = "short"
	cfg.Telemetry.Headers = map[string]string{"Authorization": "Bearer x"}

	raw := redactConfig(cfg)
	data, _ := json.Marshal(raw)
	out := string(data)

	for _, secret := range []string{"sk-0123456789abcdef", `"short"`, "Bearer x"} {
		if strings.Contains(out, secret) {
			t.Errorf("redacted config still contains %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, "sk-0****cdef") {
		t.Errorf("long token should keep its edges: %s", out)
	}
	if !strings.Contains(out, cfg.Backend.URL) {
		t.Errorf("non-secret values should be kept: %s", out)
	}
}

func TestServerWSURL(t *testing.T) {
	if got := serverWSURL("0.0.0.0", 18791); got != "ws://127.0.0.1:18791/ws" {
		t.Errorf("serverWSURL = %q", got)
	}
	if got := serverWSURL("pairlink.local", 80); got != "ws://pairlink.local:80/ws" {
		t.Errorf("serverWSURL = %q", got)
	}
}

func TestAttach_ReadsStateEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(protocol.NewEvent(protocol.EventHealth, map[string]int{"protocol": protocol.ProtocolVersion}))
		conn.WriteJSON(protocol.NewEvent(protocol.EventPairingState, pairing.View{State: pairing.Loading{}}))
		conn.WriteJSON(protocol.NewEvent(protocol.EventPairingState, pairing.View{
			State: pairing.ConnectedSteady{AdminPhone: "14155551234"},
		}))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	var got []remoteView
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := attach(ctx, wsURL, "tok", func(v remoteView) { got = append(got, v) }); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d state events, want 2", len(got))
	}
	if got[0].State != pairing.KindLoading || got[1].State != pairing.KindConnectedSteady {
		t.Errorf("states = %q, %q", got[0].State, got[1].State)
	}
	if !strings.Contains(string(got[1].Detail), "14155551234") {
		t.Errorf("detail = %s", got[1].Detail)
	}
}

func TestAttach_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	err := attach(context.Background(), wsURL, "", func(remoteView) {})
	if err == nil {
		t.Fatal("expected an error for a refused handshake")
	}
}

func TestStateLine(t *testing.T) {
	tests := []struct {
		name string
		view pairing.View
		want string
	}{
		{"loading", pairing.View{State: pairing.Loading{}}, "Loading"},
		{"unavailable", pairing.View{State: pairing.Unavailable{Err: "backend down"}}, "backend down"},
		{"qr", pairing.View{State: pairing.PairingRequired{Method: pairing.MethodQR}}, "scan the QR"},
		{"code", pairing.View{State: pairing.PairingRequired{Method: pairing.MethodCode}}, "pairing code"},
		{"pending", pairing.View{State: pairing.ConnectedPendingPhone{}}, "admin phone not set"},
		{"saved", pairing.View{State: pairing.ConnectedPhoneJustSaved{Phone: "14155551234"}, NeedsRestart: true}, "restart pending"},
		{"error", pairing.View{State: pairing.ConnectedSteady{}, LastError: "Phone already in use"}, "Phone already in use"},
		{"sync", pairing.View{
			State:        pairing.ConnectedSteady{},
			SyncState:    backend.SyncSyncing,
			SyncProgress: &backend.SyncProgress{ItemsReceived: 7},
		}, "7 chats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stateLine(tt.view); !strings.Contains(got, tt.want) {
				t.Errorf("stateLine() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestResetQuestion_FactoryResetIsLastResort(t *testing.T) {
	flush, factory := resetFlush.question(), resetFactory.question()
	if flush == factory {
		t.Fatal("flush and factory reset share a prompt")
	}
	for _, want := range []string{"last resort", "cannot be undone", "pairlink flush"} {
		if !strings.Contains(factory, want) {
			t.Errorf("factory reset prompt %q does not mention %q", factory, want)
		}
	}
	if strings.Contains(flush, "last resort") {
		t.Errorf("flush prompt = %q", flush)
	}
	if short := resetCmd().Short; !strings.Contains(short, "last resort") {
		t.Errorf("reset Short = %q", short)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, pairing.View{State: pairing.Loading{}}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"state": "loading"`) {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	if err := printJSON(&buf, map[string]interface{}{"c": make(chan int)}); err == nil {
		t.Fatal("expected an error for a value JSON cannot encode")
	}
	if buf.Len() != 0 {
		t.Errorf("partial output written on error: %q", buf.String())
	}
}

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	cfg.Backend.URL = "http://127.0.0.1:1"
	cfg.Backend.Token = "t"
	cfg.Marker.Driver = "memory"
	rt, err := newApp(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(rt.close)
	return rt
}

func TestServe_ListenFailureReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	done := make(chan error, 1)
	go func() { done <- serve(context.Background(), testApp(t), ln.Addr().String()) }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error for an address in use")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServe_ClientsSeeShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- serve(ctx, testApp(t), addr) }()

	var conn *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()

	// The initial state frame means the client is subscribed.
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev protocol.EventFrame
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Event == protocol.EventPairingState {
			break
		}
	}

	cancel()
	sawShutdown := false
	for !sawShutdown {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev protocol.EventFrame
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		sawShutdown = ev.Event == protocol.EventShutdown
	}
	if !sawShutdown {
		t.Error("connection closed without a shutdown event")
	}
	if err := <-done; err != nil {
		t.Errorf("serve: %v", err)
	}
}
