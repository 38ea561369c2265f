// Package sse implements a Server-Sent Events broker announcing registry changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Event types published by the server.
const (
	TypeReloaded      = "registry.reloaded"
	TypeCleared       = "registry.cleared"
	TypeSourceChanged = "source.changed"
)

// DefaultHeartbeat is how often an idle stream receives a keep-alive comment.
const DefaultHeartbeat = 25 * time.Second

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (e Event) frame() ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, payload)), nil
}

// subscriber is one connected stream. A nil filter accepts every type.
type subscriber struct {
	ch     chan []byte
	filter map[string]struct{}
}

func (s *subscriber) wants(typ string) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[typ]
	return ok
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithHeartbeat sets the keep-alive interval of ServeHTTP streams.
func WithHeartbeat(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// Broker fans events out to SSE streams.
//
// One goroutine owns the subscriber set and the reload throttle; every other
// method reaches it through channels.
type Broker struct {
	reloadEvery time.Duration
	heartbeat   time.Duration

	join    chan *subscriber
	leave   chan chan []byte
	events  chan Event
	reloads chan any
	count   chan chan int

	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker creates a broker that emits at most one registry.reloaded event
// per reloadThrottle. Reloads inside the window collapse into one trailing
// event carrying the latest data.
func NewBroker(reloadThrottle time.Duration, opts ...BrokerOption) *Broker {
	if reloadThrottle <= 0 {
		reloadThrottle = time.Second
	}

	b := &Broker{
		reloadEvery: reloadThrottle,
		heartbeat:   DefaultHeartbeat,
		join:        make(chan *subscriber),
		leave:       make(chan chan []byte),
		events:      make(chan Event, 256),
		reloads:     make(chan any, 256),
		count:       make(chan chan int),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.done)

	subs := make(map[chan []byte]*subscriber)

	var (
		lastReload time.Time
		pending    any
		trail      *time.Timer
		trailC     <-chan time.Time
	)

	send := func(e Event) {
		raw, err := e.frame()
		if err != nil {
			return
		}
		for _, s := range subs {
			if !s.wants(e.Type) {
				continue
			}
			select {
			case s.ch <- raw:
			default:
				// Slow reader; it misses this event.
			}
		}
	}

	for {
		select {
		case <-b.quit:
			if trail != nil {
				trail.Stop()
			}
			for ch := range subs {
				close(ch)
			}
			return

		case s := <-b.join:
			subs[s.ch] = s

		case ch := <-b.leave:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case e := <-b.events:
			send(e)

		case data := <-b.reloads:
			elapsed := time.Since(lastReload)
			if trailC == nil && elapsed >= b.reloadEvery {
				lastReload = time.Now()
				send(Event{Type: TypeReloaded, Data: data})
				continue
			}
			pending = data
			if trailC == nil {
				trail = time.NewTimer(b.reloadEvery - elapsed)
				trailC = trail.C
			}

		case <-trailC:
			trail, trailC = nil, nil
			lastReload = time.Now()
			send(Event{Type: TypeReloaded, Data: pending})
			pending = nil

		case reply := <-b.count:
			reply <- len(subs)
		}
	}
}

// Close stops the broker and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a new stream and returns its channel. With types given,
// only events of those types are delivered.
func (b *Broker) Subscribe(types ...string) chan []byte {
	s := &subscriber{ch: make(chan []byte, 64)}
	if len(types) > 0 {
		s.filter = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.filter[t] = struct{}{}
		}
	}
	if b.closed.Load() {
		close(s.ch)
		return s.ch
	}

	select {
	case b.join <- s:
	case <-b.done:
		close(s.ch)
	}
	return s.ch
}

// Unsubscribe removes a stream and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of connected streams.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	reply := make(chan int, 1)
	select {
	case b.count <- reply:
	case <-b.done:
		return 0
	}

	select {
	case n := <-reply:
		return n
	case <-b.done:
		return 0
	}
}

// Publish sends an event to all matching streams immediately.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- e:
	case <-b.done:
	}
}

// PublishReload announces a registry reload, subject to the reload throttle.
func (b *Broker) PublishReload(data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.reloads <- data:
	case <-b.done:
	}
}

// PublishCleared announces that the registry was emptied.
func (b *Broker) PublishCleared() {
	b.Publish(Event{Type: TypeCleared, Data: map[string]string{}})
}

// PublishSourceChanged announces a change to one source file.
func (b *Broker) PublishSourceChanged(path string) {
	b.Publish(Event{Type: TypeSourceChanged, Data: map[string]string{"path": path}})
}

// ServeHTTP streams events to one client (GET /api/events). The optional
// query parameter types=a,b restricts the stream to those event types.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var types []string
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(types...)
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
		case msg, open := <-ch:
			if !open {
				return
			}
			_, _ = w.Write(msg)
		}
		flusher.Flush()
	}
}
