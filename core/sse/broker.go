// Package sse fans server-sent events out to subscribers over chunked
// text/event-stream responses.
package sse

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrTooManyClients = errors.New("sse: max clients reached")
	ErrBrokerClosed   = errors.New("sse: broker closed")
)

// Defaults for NewBroker
const (
	DefaultMaxClients = 10000
	DefaultKeepalive  = 30 * time.Second
	DefaultBuffer     = 100
)

// keepaliveFrame is an event stream comment; clients ignore it
var keepaliveFrame = []byte(":keepalive\n\n")

// Event represents a Server-Sent Event
type Event struct {
	ID    string
	Event string
	Data  string
	Retry int // milliseconds
}

// AppendTo appends the wire form of e to dst. Every line of Data becomes
// its own data field.
func (e *Event) AppendTo(dst []byte) []byte {
	if e.ID != "" {
		dst = appendField(dst, "id", e.ID)
	}
	if e.Event != "" {
		dst = appendField(dst, "event", e.Event)
	}
	if e.Retry > 0 {
		dst = appendField(dst, "retry", strconv.Itoa(e.Retry))
	}
	if e.Data != "" {
		for _, line := range strings.Split(e.Data, "\n") {
			dst = appendField(dst, "data", strings.TrimSuffix(line, "\r"))
		}
	}
	return append(dst, '\n')
}

func appendField(dst []byte, name, value string) []byte {
	dst = append(dst, name...)
	dst = append(dst, ": "...)
	for i := 0; i < len(value); i++ {
		// A line break would end the field early
		if c := value[i]; c == '\n' || c == '\r' {
			dst = append(dst, ' ')
		} else {
			dst = append(dst, c)
		}
	}
	return append(dst, '\n')
}

// Client is one subscriber. Frames that do not fit its buffer are dropped.
type Client struct {
	ID uint64

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id uint64, buffer int) *Client {
	return &Client{
		ID:     id,
		frames: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// Close ends the client's stream
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client has been closed
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

// Stats is a snapshot of broker counters
type Stats struct {
	Clients   int   `json:"clients"`
	Accepted  int64 `json:"accepted"`
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

// Broker manages SSE subscribers
type Broker struct {
	clients *xsync.MapOf[uint64, *Client]
	nextID  atomic.Uint64
	eventID atomic.Uint64

	accepted  atomic.Int64
	published atomic.Int64
	dropped   atomic.Int64

	maxClients int
	buffer     int

	closed    atomic.Bool
	stop      chan struct{}
	closeOnce sync.Once
}

// NewBroker creates a broker that sends a keepalive comment to every
// subscriber each keepalive interval, so dead peers are noticed
func NewBroker(maxClients int, keepalive time.Duration) *Broker {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}

	b := &Broker{
		clients:    xsync.NewMapOf[uint64, *Client](),
		maxClients: maxClients,
		buffer:     DefaultBuffer,
		stop:       make(chan struct{}),
	}
	go b.keepalive(keepalive)
	return b
}

func (b *Broker) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.broadcast(keepaliveFrame)
		case <-b.stop:
			return
		}
	}
}

func (b *Broker) broadcast(frame []byte) {
	b.clients.Range(func(_ uint64, c *Client) bool {
		if !c.send(frame) {
			b.dropped.Add(1)
		}
		return true
	})
}

// Subscribe registers a new client
func (b *Broker) Subscribe() (*Client, error) {
	if b.closed.Load() {
		return nil, ErrBrokerClosed
	}
	if b.clients.Size() >= b.maxClients {
		return nil, ErrTooManyClients
	}

	c := newClient(b.nextID.Add(1), b.buffer)
	b.clients.Store(c.ID, c)
	b.accepted.Add(1)

	// Close may have ranged the clients before the store
	if b.closed.Load() {
		b.Unsubscribe(c)
		return nil, ErrBrokerClosed
	}
	return c, nil
}

// Unsubscribe removes and closes c
func (b *Broker) Unsubscribe(c *Client) {
	b.clients.Delete(c.ID)
	c.Close()
}

// Publish sends e to every client and returns the event ID, assigning a
// sequential one when e has none
func (b *Broker) Publish(e Event) string {
	if e.ID == "" {
		e.ID = strconv.FormatUint(b.eventID.Add(1), 10)
	}
	b.published.Add(1)
	b.broadcast(e.AppendTo(nil))
	return e.ID
}

// PublishTo sends e to one client. It reports false when the client is
// gone or its buffer is full.
func (b *Broker) PublishTo(id uint64, e Event) bool {
	c, ok := b.clients.Load(id)
	if !ok {
		return false
	}
	if e.ID == "" {
		e.ID = strconv.FormatUint(b.eventID.Add(1), 10)
	}
	b.published.Add(1)
	if !c.send(e.AppendTo(nil)) {
		b.dropped.Add(1)
		return false
	}
	return true
}

// Len returns the number of subscribed clients
func (b *Broker) Len() int {
	return b.clients.Size()
}

func (b *Broker) Stats() Stats {
	return Stats{
		Clients:   b.clients.Size(),
		Accepted:  b.accepted.Load(),
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Close stops the keepalive loop and ends every client's stream
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.stop)
		b.clients.Range(func(_ uint64, c *Client) bool {
			b.Unsubscribe(c)
			return true
		})
	})
}
