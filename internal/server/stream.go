package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/harkd/hark/internal/output"
)

// subscriberBuffer is the per-client event buffer. A subscriber that falls
// behind by more than this many entries loses the entries published while
// its buffer is full; the buffered backlog is preserved.
const subscriberBuffer = 16

// Hub broadcasts transcript entries to connected websocket clients. A slow
// client never blocks the publisher: entries are dropped per subscriber when
// its buffer is full. Hub implements [http.Handler] for the /events route
// and [output.Sink] so it can be registered with the transcript dispatcher.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan output.Entry]struct{}
	closed bool
}

var _ output.Sink = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan output.Entry]struct{})}
}

// Name implements [output.Sink].
func (h *Hub) Name() string { return "websocket" }

// Write implements [output.Sink] by publishing the entry to all subscribers.
func (h *Hub) Write(_ context.Context, e output.Entry) error {
	h.Publish(e)
	return nil
}

// Publish fans the entry out to every subscriber without blocking. Entries
// to a full subscriber buffer are dropped.
func (h *Hub) Publish(e output.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			slog.Debug("websocket subscriber too slow, dropping transcript entry")
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects all subscribers. Publishing after Close is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan output.Entry]struct{})
}

// subscribe registers a new subscriber channel. The returned cancel func
// must be called when the client disconnects.
func (h *Hub) subscribe() (<-chan output.Entry, func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, false
	}
	ch := make(chan output.Entry, subscriberBuffer)
	h.subs[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, true
}

// ServeHTTP upgrades the request to a websocket and streams transcript
// entries as JSON text messages until the client disconnects or the hub
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	ch, cancel, ok := h.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer cancel()

	ctx := r.Context()
	slog.Debug("websocket subscriber connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e, open := <-ch:
			if !open {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			data, err := json.Marshal(streamEvent{
				SessionID: e.SessionID,
				Text:      e.Text,
				Final:     e.Final,
				At:        e.At.Format("2006-01-02T15:04:05.000Z07:00"),
			})
			if err != nil {
				slog.Warn("websocket marshal failed", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("websocket write failed, dropping subscriber", "error", err)
				return
			}
		}
	}
}

// streamEvent is the wire format of one /events message.
type streamEvent struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	At        string `json:"at"`
}
