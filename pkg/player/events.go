package player

import (
	"sync"
	"time"

	"github.com/latoulicious/Kolega/pkg/voice"
)

// EventKind identifies what happened in a session
type EventKind int

const (
	// EventNextSong fires whenever a track starts playing
	EventNextSong EventKind = iota
	// EventFinished fires when auto-advance finds the queue empty
	EventFinished
	// EventClosed fires once when the session is disposed
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventNextSong:
		return "next_song"
	case EventFinished:
		return "finished"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered to session listeners
type Event struct {
	Kind      EventKind
	Track     Track
	Channel   voice.ChannelRef
	Timestamp time.Time
}

// Listener receives session events on C until it is closed or the
// session is disposed
type Listener struct {
	C <-chan Event

	c   chan Event
	hub *eventHub
}

// Close detaches the listener and closes C. Safe to call multiple times.
func (l *Listener) Close() {
	l.hub.detach(l)
}

type eventHub struct {
	mu        sync.Mutex
	listeners map[*Listener]struct{}
	closed    bool
	dropped   func(Event)
}

func newEventHub(dropped func(Event)) *eventHub {
	return &eventHub{
		listeners: make(map[*Listener]struct{}),
		dropped:   dropped,
	}
}

func (h *eventHub) subscribe(buffer int) *Listener {
	c := make(chan Event, buffer)
	l := &Listener{C: c, c: c, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(c)
		return l
	}

	h.listeners[l] = struct{}{}
	return l
}

func (h *eventHub) detach(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.listeners[l]; !ok {
		return
	}
	delete(h.listeners, l)
	close(l.c)
}

func (h *eventHub) emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for l := range h.listeners {
		select {
		case l.c <- ev:
		default:
			if h.dropped != nil {
				h.dropped(ev)
			}
		}
	}
}

func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for l := range h.listeners {
		delete(h.listeners, l)
		close(l.c)
	}
}
