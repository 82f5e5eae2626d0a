package sse

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/searchktools/h1server/core/http/httptest"
)

func TestEventAppendTo(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"data only", Event{Data: "hello"}, "data: hello\n\n"},
		{"all fields", Event{ID: "7", Event: "tick", Retry: 500, Data: "x"}, "id: 7\nevent: tick\nretry: 500\ndata: x\n\n"},
		{"multi-line data", Event{Data: "a\r\nb\nc"}, "data: a\ndata: b\ndata: c\n\n"},
		{"line break in name", Event{Event: "bad\nname"}, "event: bad name\n\n"},
		{"empty", Event{}, "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(tt.event.AppendTo(nil)); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case f := <-c.frames:
		return string(f)
	case <-time.After(time.Second):
		t.Fatal("No frame received")
		return ""
	}
}

func TestBrokerPublish(t *testing.T) {
	b := NewBroker(0, time.Hour)
	defer b.Close()

	c1, err := b.Subscribe()
	if err != nil {
		t.Fatal(err)
	}
	c2, _ := b.Subscribe()
	if b.Len() != 2 {
		t.Fatalf("Expected 2 clients, got %d", b.Len())
	}

	if id := b.Publish(Event{Event: "tick", Data: "1"}); id != "1" {
		t.Errorf("Expected ID 1, got %q", id)
	}
	want := "id: 1\nevent: tick\ndata: 1\n\n"
	if got := receive(t, c1); got != want {
		t.Errorf("c1 got %q", got)
	}
	if got := receive(t, c2); got != want {
		t.Errorf("c2 got %q", got)
	}

	if !b.PublishTo(c2.ID, Event{Data: "only you"}) {
		t.Fatal("PublishTo failed")
	}
	if got := receive(t, c2); got != "id: 2\ndata: only you\n\n" {
		t.Errorf("c2 got %q", got)
	}
	select {
	case f := <-c1.frames:
		t.Errorf("c1 should get nothing, got %q", f)
	default:
	}

	b.Unsubscribe(c1)
	if b.PublishTo(c1.ID, Event{Data: "gone"}) {
		t.Error("PublishTo an unsubscribed client should fail")
	}

	st := b.Stats()
	if st.Clients != 1 || st.Accepted != 2 || st.Published != 2 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestBrokerLimits(t *testing.T) {
	b := NewBroker(1, time.Hour)

	c, err := b.Subscribe()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Subscribe(); !errors.Is(err, ErrTooManyClients) {
		t.Errorf("Expected ErrTooManyClients, got %v", err)
	}

	b.Close()
	select {
	case <-c.Done():
	default:
		t.Error("Close should end every client")
	}
	if _, err := b.Subscribe(); !errors.Is(err, ErrBrokerClosed) {
		t.Errorf("Expected ErrBrokerClosed, got %v", err)
	}
	b.Close()
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker(0, time.Hour)
	defer b.Close()

	if _, err := b.Subscribe(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < DefaultBuffer+3; i++ {
		b.Publish(Event{Data: "x"})
	}
	if got := b.Stats().Dropped; got != 3 {
		t.Errorf("Expected 3 dropped, got %d", got)
	}
}

func TestBrokerKeepalive(t *testing.T) {
	b := NewBroker(0, 10*time.Millisecond)
	defer b.Close()

	c, _ := b.Subscribe()
	if got := receive(t, c); got != string(keepaliveFrame) {
		t.Errorf("Expected keepalive comment, got %q", got)
	}
}

// waitFor polls cond until it holds or a second has passed
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandlerStream(t *testing.T) {
	b := NewBroker(0, time.Hour)
	h := NewHandler(b)
	h.Retry = 1000

	ctx, out, err := httptest.NewContext("GET /events HTTP/1.1\r\nHost: a\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- h.Handle(ctx) }()

	waitFor(t, func() bool { return b.Len() == 1 })
	b.Publish(Event{Event: "tick", Data: "a\nb"})
	b.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Handler did not return after Close")
	}

	if out.Status() != 200 {
		t.Errorf("Expected 200, got %d", out.Status())
	}
	if ct := out.Header("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Unexpected Content-Type %q", ct)
	}
	if te := out.Header("Transfer-Encoding"); te != "chunked" {
		t.Errorf("Unexpected Transfer-Encoding %q", te)
	}

	body := out.Body()
	for _, want := range []string{
		"event: connected\nretry: 1000\ndata: client_id:1\n\n",
		"id: 1\nevent: tick\ndata: a\ndata: b\n\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Body %q missing %q", body, want)
		}
	}
	if !strings.HasSuffix(body, "0\r\n\r\n") {
		t.Errorf("Stream not terminated: %q", body)
	}
	if b.Len() != 0 {
		t.Errorf("Expected handler to unsubscribe, %d left", b.Len())
	}
}

func TestHandlerHead(t *testing.T) {
	b := NewBroker(0, time.Hour)
	defer b.Close()

	ctx, out, err := httptest.NewContext("HEAD /events HTTP/1.1\r\nHost: a\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if err := NewHandler(b).Handle(ctx); err != nil {
		t.Fatal(err)
	}
	if out.Status() != 200 || out.Body() != "" {
		t.Errorf("Unexpected HEAD response %q", out.String())
	}
	if b.Len() != 0 {
		t.Errorf("Expected no subscribers, got %d", b.Len())
	}
}

func TestHandlerFull(t *testing.T) {
	b := NewBroker(1, time.Hour)
	defer b.Close()
	b.Subscribe()

	ctx, out, err := httptest.NewContext("GET /events HTTP/1.1\r\nHost: a\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if err := NewHandler(b).Handle(ctx); err != nil {
		t.Fatal(err)
	}
	if out.Status() != 503 {
		t.Errorf("Expected 503, got %d", out.Status())
	}
}
