// Package bridge exposes engine events to companion devices over WebSocket.
//
// Clients connect to the /ws endpoint and receive a JSON event stream
// mirroring the engine's event surface (started, processing, result, failure,
// stopped). The bridge is broadcast-only: slow or unresponsive clients are
// disconnected rather than allowed to apply backpressure to the pipeline.
package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	// subscriberBuffer is the per-client event queue depth. A client that
	// falls this far behind is disconnected.
	subscriberBuffer = 16

	// writeTimeout bounds a single event write to a client.
	writeTimeout = 5 * time.Second
)

// Event is a single JSON message on the bridge stream.
type Event struct {
	// Type is one of "started", "processing", "result", "failure", "stopped".
	Type string `json:"type"`

	// Text carries the transcript for result events.
	Text string `json:"text,omitempty"`

	// LatencyMS carries the transcription latency for result events.
	LatencyMS int64 `json:"latency_ms,omitempty"`

	// Error carries the failure reason for failure events.
	Error string `json:"error,omitempty"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`
}

// ResultEvent builds a result event.
func ResultEvent(text string, latency time.Duration) Event {
	return Event{Type: "result", Text: text, LatencyMS: latency.Milliseconds(), Timestamp: time.Now()}
}

// FailureEvent builds a failure event.
func FailureEvent(err error) Event {
	return Event{Type: "failure", Error: err.Error(), Timestamp: time.Now()}
}

// LifecycleEvent builds an event that carries only a type, for the started,
// processing, and stopped notifications.
func LifecycleEvent(typ string) Event {
	return Event{Type: typ, Timestamp: time.Now()}
}

type subscriber struct {
	events chan Event

	// closeSlow disconnects the client when its queue overflows.
	closeSlow func()
}

// Server is a broadcast-only WebSocket event publisher. It implements
// http.Handler for the /ws endpoint. The zero value is not usable; use
// [NewServer].
type Server struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewServer creates a Server with no subscribers.
func NewServer() *Server {
	return &Server{subs: make(map[*subscriber]struct{})}
}

// Publish fans the event out to all connected clients without blocking.
// Clients whose queues are full are disconnected.
func (s *Server) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.events <- ev:
		default:
			go sub.closeSlow()
		}
	}
}

// SubscriberCount returns the number of connected clients.
func (s *Server) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// ServeHTTP upgrades the request to a WebSocket and streams events until the
// client disconnects or falls too far behind.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("bridge: websocket accept failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()

	sub := &subscriber{
		events: make(chan Event, subscriberBuffer),
		closeSlow: func() {
			conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with events")
		},
	}
	s.add(sub)
	defer s.remove(sub)

	slog.Info("bridge: client connected", "remote", r.RemoteAddr)

	// The bridge is write-only; CloseRead drains and discards anything the
	// client sends and cancels the context on disconnect.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case ev := <-sub.events:
			if err := writeEvent(ctx, conn, ev); err != nil {
				slog.Debug("bridge: client write failed", "error", err, "remote", r.RemoteAddr)
				return
			}
		case <-ctx.Done():
			slog.Info("bridge: client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

func (s *Server) add(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub] = struct{}{}
}

func (s *Server) remove(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
