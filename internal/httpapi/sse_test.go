package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEHub_subscribePublishUnsubscribe(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.subscribe()
	if hub.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d", hub.Subscribers())
	}
	hub.PublishJSON(map[string]any{"type": "task_update", "n": 1})
	hub.PublishJSON(map[string]any{"type": "activity"})
	first, second := <-ch, <-ch
	if first.name != "task_update" || !strings.Contains(string(first.data), `"n":1`) {
		t.Errorf("first event: %+v", first)
	}
	if second.id != first.id+1 {
		t.Errorf("ids not sequential: %d then %d", first.id, second.id)
	}
	hub.unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after unsubscribe")
	}
	hub.unsubscribe(ch) // second call is a no-op
}

func TestSSEHub_dropsForSlowSubscriber(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)
	for i := 0; i < cap(ch)+10; i++ {
		hub.PublishJSON(map[string]int{"n": i})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered %d of %d", len(ch), cap(ch))
	}
	if hub.Dropped() != 10 {
		t.Fatalf("Dropped = %d", hub.Dropped())
	}
}

// streamBody runs the handler until publish has been called and the context is cancelled.
func streamBody(t *testing.T, hub *SSEHub, target string, publish func()) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		hub.Handler()(rec, req)
		close(done)
	}()
	for hub.Subscribers() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	publish()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	return rec.Body.String()
}

func TestSSEHub_Handler(t *testing.T) {
	hub := NewSSEHub()
	body := streamBody(t, hub, "/stream", func() {
		hub.PublishJSON(map[string]any{"type": "message", "message": "hi"})
	})
	sc := bufio.NewScanner(strings.NewReader(body))
	if !sc.Scan() || !strings.Contains(sc.Text(), "connected") {
		t.Fatalf("first frame: %q", body)
	}
	if !strings.Contains(body, "event: message\n") || !strings.Contains(body, "id: 1\n") {
		t.Fatalf("named event missing: %q", body)
	}
}

func TestSSEHub_HandlerTypeFilter(t *testing.T) {
	hub := NewSSEHub()
	body := streamBody(t, hub, "/stream?types=activity", func() {
		hub.PublishJSON(map[string]any{"type": "task_update"})
		hub.PublishJSON(map[string]any{"type": "activity"})
	})
	if strings.Contains(body, "event: task_update") {
		t.Fatalf("filtered event forwarded: %q", body)
	}
	if !strings.Contains(body, "event: activity") {
		t.Fatalf("wanted event missing: %q", body)
	}
}
