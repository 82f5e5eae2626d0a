package sse

import (
	"io"
	"strconv"

	"github.com/searchktools/h1server/core/http"
)

// Handler subscribes each request to a broker and streams its events as a
// chunked text/event-stream response. The response ends when the client
// is unsubscribed or the broker closes.
type Handler struct {
	broker *Broker

	// Retry is sent with the opening event when positive
	Retry int
}

func NewHandler(b *Broker) *Handler {
	return &Handler{broker: b}
}

func (h *Handler) Handle(ctx http.Context) error {
	c, err := h.broker.Subscribe()
	if err != nil {
		return ctx.Error(503, err.Error())
	}
	defer h.broker.Unsubscribe(c)

	rw := ctx.Response()
	if err := rw.WriteStatus(200); err != nil {
		return err
	}
	if err := rw.WriteHeader("Content-Type", "text/event-stream"); err != nil {
		return err
	}
	if err := rw.WriteHeader("Cache-Control", "no-cache"); err != nil {
		return err
	}

	hello := Event{
		Event: "connected",
		Data:  "client_id:" + strconv.FormatUint(c.ID, 10),
		Retry: h.Retry,
	}
	return rw.Stream(&eventReader{
		client:  c,
		flush:   rw.Flush,
		pending: hello.AppendTo(nil),
	})
}

// eventReader turns a client's frames into a byte stream. Before blocking
// for the next frame it flushes what has been written so far.
type eventReader struct {
	client  *Client
	flush   func() error
	pending []byte
}

func (r *eventReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		select {
		case frame := <-r.client.frames:
			r.pending = frame
		default:
			if err := r.flush(); err != nil {
				return 0, err
			}
			select {
			case frame := <-r.client.frames:
				r.pending = frame
			case <-r.client.done:
				// Deliver what was queued before the close
				select {
				case frame := <-r.client.frames:
					r.pending = frame
				default:
					return 0, io.EOF
				}
			}
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
