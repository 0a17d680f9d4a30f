package client

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sketchsync/internal/game/protocol"
	"github.com/mcdev12/sketchsync/internal/game/session"
)

// Client wires the connection, codec, store, reconciler and round timer
// into one session synchronization client. Inbound frames flow
// socket -> codec -> reconciler -> bus subscribers; user actions flow
// sender -> connection -> socket.
type Client struct {
	cfg Config

	bus        *session.Bus
	store      *session.Store
	reconciler *session.Reconciler
	timer      *session.RoundTimer
	conn       *Conn
	sender     *Sender
}

// New creates a client from config, using the real clock
func New(cfg Config) *Client {
	return NewWithClock(cfg, clockwork.NewRealClock())
}

// NewWithClock creates a client with an injected clock for tests
func NewWithClock(cfg Config, clock clockwork.Clock) *Client {
	bus := session.NewBus()
	store := session.NewStore(cfg.UserID)
	reconciler := session.NewReconciler(store, bus)
	timer := session.NewRoundTimer(clock, bus)
	conn := NewConn(cfg.Socket, cfg.Reconnect, clock, bus)

	c := &Client{
		cfg:        cfg,
		bus:        bus,
		store:      store,
		reconciler: reconciler,
		timer:      timer,
		conn:       conn,
		sender:     NewSender(conn, clock),
	}

	// The timer only observes committed snapshots; it never drives the
	// state machine.
	bus.Subscribe(func(ev session.Event) {
		if ev.Type == session.EventGameSnapshot {
			timer.OnSnapshotApplied(ev.Game)
		}
	})

	return c
}

// Start runs the event bus and the apply loop until the context is
// cancelled. All reconciler mutations happen on the apply goroutine,
// strictly in arrival order.
func (c *Client) Start(ctx context.Context) {
	go c.bus.Run(ctx)
	go c.applyLoop(ctx)
}

// applyLoop is the single serialization point for inbound envelopes
func (c *Client) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.timer.Stop()
			return
		case raw := <-c.conn.Inbox():
			c.applyFrame(raw)
		}
	}
}

// applyFrame decodes and reconciles one raw frame. Decode failures are
// reported as non-fatal signals and the frame is discarded; the
// session continues.
func (c *Client) applyFrame(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Msg("dropping undecodable frame")
		c.bus.Publish(session.Event{Type: session.EventConnectionError, Err: err})
		return
	}

	if err := c.reconciler.Apply(env); err != nil {
		var decodeErr *protocol.DecodeError
		if errors.As(err, &decodeErr) {
			log.Warn().Err(err).Str("message_type", string(env.Type)).Msg("dropping undecodable payload")
			c.bus.Publish(session.Event{Type: session.EventConnectionError, Err: err})
			return
		}
		log.Error().Err(err).Str("message_type", string(env.Type)).Msg("failed to apply envelope")
	}
}

// Connect opens the socket using the configured endpoint and token
func (c *Client) Connect() error {
	return c.conn.Connect(c.cfg.Endpoint, c.cfg.AuthToken)
}

// Disconnect closes the socket, cancels any pending reconnect and any
// running round timer, and discards the session state along with the
// reconciler's per-session memory.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
	c.timer.Stop()
	c.store.Reset()
	c.reconciler.Reset()
}

// Reconnect forces a fresh connection with the attempt counter reset
func (c *Client) Reconnect() error {
	return c.conn.Reconnect()
}

// SetAuthToken swaps the credential, reconnecting if currently up
func (c *Client) SetAuthToken(token string) error {
	c.cfg.AuthToken = token
	return c.conn.SetAuthToken(token)
}

// Subscribe registers a session event callback. All callbacks run on
// the bus goroutine, never concurrently.
func (c *Client) Subscribe(fn func(session.Event)) {
	c.bus.Subscribe(fn)
}

// Sender returns the outbound command sender
func (c *Client) Sender() *Sender {
	return c.sender
}

// Store returns the session state store for read access
func (c *Client) Store() *session.Store {
	return c.store
}

// ConnState returns the connection lifecycle state
func (c *Client) ConnState() ConnState {
	return c.conn.State()
}

// Stats returns a snapshot of client state for the debug endpoint
func (c *Client) Stats() map[string]any {
	stats := map[string]any{
		"connection_state": c.conn.State().String(),
		"joined_lobby_id":  c.store.JoinedLobbyID(),
		"timer_running":    c.timer.Running(),
		"timer_remaining":  c.timer.Remaining(),
	}
	if lobby := c.store.Lobby(); lobby != nil {
		stats["lobby"] = lobby
	}
	if game := c.store.Game(); game != nil {
		stats["game"] = game
	}
	return stats
}
