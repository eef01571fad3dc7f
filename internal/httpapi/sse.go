package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ankittk/missioncontrol/internal/otel"
	"github.com/ankittk/missioncontrol/pkg/models"
)

// sseEvent is one change-feed frame. name is the "type" field of the published object.
type sseEvent struct {
	id   uint64
	name string
	data []byte
}

// SSEHub fans change-feed events out to /stream subscribers. A subscriber that
// falls behind loses events rather than blocking publishers.
type SSEHub struct {
	mu      sync.RWMutex
	subs    map[chan sseEvent]struct{}
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func NewSSEHub() *SSEHub {
	return &SSEHub{subs: make(map[chan sseEvent]struct{})}
}

func (h *SSEHub) subscribe() chan sseEvent {
	ch := make(chan sseEvent, models.DefaultSSEChannelBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	otel.AddSSEConnection()
	return ch
}

func (h *SSEHub) unsubscribe(ch chan sseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
		otel.RemoveSSEConnection()
	}
}

// Subscribers returns the current subscriber count.
func (h *SSEHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many frames were discarded for slow subscribers.
func (h *SSEHub) Dropped() uint64 { return h.dropped.Load() }

// PublishJSON marshals v and sends it to every subscriber. Maps with a string
// "type" key become named events.
func (h *SSEHub) PublishJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	ev := sseEvent{id: h.seq.Add(1), name: eventName(v), data: b}
	otel.RecordSSEEvent(context.Background())
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

func eventName(v any) string {
	switch m := v.(type) {
	case map[string]any:
		s, _ := m["type"].(string)
		return s
	case map[string]string:
		return m["type"]
	}
	return ""
}

// Handler serves GET /stream. The optional types query (comma separated) limits
// which event names are forwarded.
func (h *SSEHub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		want := map[string]bool{}
		for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				want[t] = true
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch := h.subscribe()
		defer h.unsubscribe(ch)

		_, _ = fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		flusher.Flush()

		keepalive := time.NewTicker(30 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepalive.C:
				_, _ = fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if len(want) > 0 && !want[ev.name] {
					continue
				}
				writeEvent(w, ev)
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev sseEvent) {
	_, _ = fmt.Fprintf(w, "id: %d\n", ev.id)
	if ev.name != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", ev.name)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", ev.data)
}
