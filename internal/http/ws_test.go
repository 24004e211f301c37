package http

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

func readEvent(t *testing.T, conn *websocket.Conn) protocol.EventFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev protocol.EventFrame
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestWebSocket_PushesStateEvents(t *testing.T) {
	mb := bus.New()
	ctrl := &fakeController{view: pairing.View{State: pairing.Loading{}}}
	s := NewServer(ctrl, mb, Options{Token: "secret"})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=secret"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if ev := readEvent(t, conn); ev.Event != protocol.EventHealth {
		t.Fatalf("first event = %q, want %q", ev.Event, protocol.EventHealth)
	}
	if ev := readEvent(t, conn); ev.Event != protocol.EventPairingState {
		t.Fatalf("second event = %q, want %q", ev.Event, protocol.EventPairingState)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mb.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	mb.Broadcast(bus.Event{Name: protocol.EventPairingConnected, Payload: pairing.View{State: pairing.ConnectedSteady{}}})

	ev := readEvent(t, conn)
	if ev.Event != protocol.EventPairingConnected || ev.Seq != 1 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestWebSocket_ChangeDuringConnectIsDelivered(t *testing.T) {
	mb := bus.New()
	ctrl := &fakeController{view: pairing.View{State: pairing.Loading{}}}
	var once sync.Once
	ctrl.onView = func() {
		once.Do(func() {
			// A change lands while the initial view is being read.
			done := make(chan struct{})
			go func() {
				mb.Broadcast(bus.Event{Name: protocol.EventPairingConnected, Payload: pairing.View{State: pairing.ConnectedSteady{}}})
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
	s := NewServer(ctrl, mb, Options{})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	want := []string{protocol.EventHealth, protocol.EventPairingState, protocol.EventPairingConnected}
	for i, name := range want {
		if ev := readEvent(t, conn); ev.Event != name {
			t.Fatalf("event %d = %q, want %q", i, ev.Event, name)
		}
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	s := NewServer(&fakeController{}, bus.New(), Options{Token: "secret"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial failure without token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("response = %v", resp)
	}
}

func TestWebSocket_UnsubscribesOnClose(t *testing.T) {
	mb := bus.New()
	s := NewServer(&fakeController{view: pairing.View{State: pairing.Loading{}}}, mb, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readEvent(t, conn)
	readEvent(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for mb.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(&fakeController{}, bus.New(), Options{AllowedOrigins: []string{"https://dash.example.com"}})
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "127.0.0.1:18791", true},
		{"http://127.0.0.1:18791", "127.0.0.1:18791", true},
		{"https://dash.example.com", "127.0.0.1:18791", true},
		{"https://evil.example.com", "127.0.0.1:18791", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := s.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
