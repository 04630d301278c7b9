package broadcast

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MatthiasKunnen/screenlock/pkg/sink"
	"github.com/gorilla/websocket"
)

var _ sink.Sink = (*Hub)(nil)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}

	return ev
}

func TestHub_BroadcastsToAllClients(t *testing.T) {
	hub, url := newTestHub(t)
	a := dial(t, url)
	b := dial(t, url)
	waitForClients(t, hub, 2)

	if err := hub.Emit(sink.Topic, sink.PayloadLock); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		if ev.Topic != sink.Topic {
			t.Errorf("Topic = %q, want %q", ev.Topic, sink.Topic)
		}
		if ev.Payload != sink.PayloadLock {
			t.Errorf("Payload = %q, want %q", ev.Payload, sink.PayloadLock)
		}
		if ev.Time.IsZero() {
			t.Error("Time should be set")
		}
	}
}

func TestHub_StampsHost(t *testing.T) {
	hub, url := newTestHub(t)
	hub.SetHost("workstation")
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	if err := hub.Emit(sink.Topic, sink.PayloadUnlock); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if got := readEvent(t, conn).Host; got != "workstation" {
		t.Errorf("Host = %q, want %q", got, "workstation")
	}
}

func TestHub_PreservesOrder(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	payloads := []string{"lock", "unlock", "lock"}
	for _, p := range payloads {
		if err := hub.Emit(sink.Topic, p); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}

	for i, want := range payloads {
		if got := readEvent(t, conn).Payload; got != want {
			t.Errorf("event %d payload = %q, want %q", i, got, want)
		}
	}
}

func TestHub_LateClientReceivesLastEvent(t *testing.T) {
	hub, url := newTestHub(t)

	if err := hub.Emit(sink.Topic, sink.PayloadLock); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if err := hub.Emit(sink.Topic, sink.PayloadUnlock); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	conn := dial(t, url)
	if got := readEvent(t, conn).Payload; got != sink.PayloadUnlock {
		t.Errorf("payload = %q, want %q", got, sink.PayloadUnlock)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_Close(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	if err := hub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Close, want 0", hub.ClientCount())
	}
	if err := hub.Emit(sink.Topic, sink.PayloadLock); !errors.Is(err, ErrClosed) {
		t.Errorf("Emit error = %v, want %v", err, ErrClosed)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}
}
