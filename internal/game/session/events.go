package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sketchsync/internal/game/protocol"
)

// EventType identifies a session event delivered to subscribers
type EventType string

const (
	EventConnected          EventType = "Connected"
	EventDisconnected       EventType = "Disconnected"
	EventConnectionError    EventType = "ConnectionError"
	EventLobbySnapshot      EventType = "LobbySnapshotChanged"
	EventGameSnapshot       EventType = "GameSnapshotChanged"
	EventLobbyDirectory     EventType = "LobbyDirectoryChanged"
	EventDrawingChanged     EventType = "DrawingChanged"
	EventRoundElapsed       EventType = "RoundElapsed"
	EventUnknownEnvelope    EventType = "UnknownEnvelopeType"
	EventReconnectExhausted EventType = "ReconnectExhausted"
)

// Event is the unit of delivery on the session bus. Only the fields
// relevant to the event type are populated.
type Event struct {
	Type    EventType
	Lobby   *LobbySnapshot
	Game    *GameSnapshot
	Lobbies []protocol.LobbyInfo

	// Disconnected details
	Code   int
	Reason string

	// ConnectionError / UnknownEnvelopeType details
	Err         error
	MessageType protocol.MessageType
}

// Bus fans session events out to subscribers. All delivery happens on a
// single goroutine so observers never see concurrent callbacks, and
// events arrive in publish order.
type Bus struct {
	mu      sync.RWMutex
	subs    []func(Event)
	eventCh chan Event

	// pending holds the latest snapshot-carrying event per type when
	// the queue overflows. Snapshots supersede their predecessors, so
	// keeping only the newest loses nothing; delivering it after the
	// queue drains preserves publish order.
	pendingMu sync.Mutex
	pending   map[EventType]Event
}

// NewBus creates a session event bus
func NewBus() *Bus {
	return &Bus{
		eventCh: make(chan Event, 256),
		pending: make(map[EventType]Event),
	}
}

// Subscribe registers a callback invoked on the bus goroutine for every
// published event. Subscriptions cannot be removed; they live for the
// session.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish enqueues an event for delivery. Never blocks the apply loop:
// on overflow, snapshot-carrying events coalesce into a latest-wins
// slot and everything else drops with a warning.
func (b *Bus) Publish(ev Event) {
	select {
	case b.eventCh <- ev:
		return
	default:
	}

	switch ev.Type {
	case EventLobbySnapshot, EventGameSnapshot, EventLobbyDirectory, EventDrawingChanged:
		b.pendingMu.Lock()
		b.pending[ev.Type] = ev
		b.pendingMu.Unlock()
		log.Warn().Str("event_type", string(ev.Type)).Msg("event bus full, coalescing to latest snapshot")
	default:
		log.Warn().Str("event_type", string(ev.Type)).Msg("event bus full, dropping event")
	}
}

// Run delivers events until the context is cancelled. Queued events
// drain first; coalesced snapshots follow once the queue is empty.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.eventCh:
			b.deliver(ev)
			continue
		default:
		}

		if ev, ok := b.takePending(); ok {
			b.deliver(ev)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case ev := <-b.eventCh:
			b.deliver(ev)
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (b *Bus) takePending() (Event, bool) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for typ, ev := range b.pending {
		delete(b.pending, typ)
		return ev, true
	}
	return Event{}, false
}
