package bridge_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vaani-ai/vaani/internal/bridge"
)

// dial connects a test client to the bridge server and waits for the
// subscription to register.
func dial(t *testing.T, s *bridge.Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, ts.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	deadline := time.After(2 * time.Second)
	for s.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber never registered")
		case <-time.After(time.Millisecond):
		}
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) bridge.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev bridge.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestServer_BroadcastsResultEvent(t *testing.T) {
	t.Parallel()

	s := bridge.NewServer()
	conn := dial(t, s)

	s.Publish(bridge.ResultEvent("hello world", 120*time.Millisecond))

	ev := readEvent(t, conn)
	if ev.Type != "result" {
		t.Errorf("event type: got %q, want result", ev.Type)
	}
	if ev.Text != "hello world" {
		t.Errorf("event text: got %q, want hello world", ev.Text)
	}
	if ev.LatencyMS != 120 {
		t.Errorf("event latency: got %d, want 120", ev.LatencyMS)
	}
}

func TestServer_BroadcastsFailureEvent(t *testing.T) {
	t.Parallel()

	s := bridge.NewServer()
	conn := dial(t, s)

	s.Publish(bridge.FailureEvent(errors.New("engine unavailable")))

	ev := readEvent(t, conn)
	if ev.Type != "failure" {
		t.Errorf("event type: got %q, want failure", ev.Type)
	}
	if ev.Error != "engine unavailable" {
		t.Errorf("event error: got %q", ev.Error)
	}
}

func TestServer_LifecycleEventsInOrder(t *testing.T) {
	t.Parallel()

	s := bridge.NewServer()
	conn := dial(t, s)

	s.Publish(bridge.LifecycleEvent("started"))
	s.Publish(bridge.LifecycleEvent("processing"))
	s.Publish(bridge.LifecycleEvent("stopped"))

	for _, want := range []string{"started", "processing", "stopped"} {
		if ev := readEvent(t, conn); ev.Type != want {
			t.Errorf("event type: got %q, want %q", ev.Type, want)
		}
	}
}

func TestServer_PublishWithoutSubscribersIsNoOp(t *testing.T) {
	t.Parallel()

	s := bridge.NewServer()
	s.Publish(bridge.LifecycleEvent("started"))

	if got := s.SubscriberCount(); got != 0 {
		t.Errorf("subscriber count: got %d, want 0", got)
	}
}

func TestServer_SubscriberRemovedOnDisconnect(t *testing.T) {
	t.Parallel()

	s := bridge.NewServer()
	conn := dial(t, s)

	conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.After(2 * time.Second)
	for s.SubscriberCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber not removed after disconnect")
		case <-time.After(time.Millisecond):
		}
	}
}
