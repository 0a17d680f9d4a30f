package client

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sketchsync/internal/game/session"
)

// ConnState is the connection lifecycle state. It transitions only on
// socket lifecycle events or explicit disconnect/reconnect calls.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// tokenSentinel is the unauthenticated placeholder some token providers
// hand out instead of an empty string.
const tokenSentinel = "null"

// Conn owns the socket lifecycle: connect, authenticate, disconnect,
// and bounded-backoff reconnect. Inbound frames are delivered in
// arrival order on a single channel; lifecycle signals go out on the
// session bus.
type Conn struct {
	cfg   SocketConfig
	clock clockwork.Clock
	bus   *session.Bus

	mu         sync.Mutex
	state      ConnState
	endpoint   string
	token      string
	socket     *websocket.Conn
	sendCh     chan []byte
	stopCh     chan struct{}
	userClosed bool
	exhausted  bool
	policy     ReconnectPolicy

	reconnectTimer clockwork.Timer
	reconnectStop  chan struct{}

	inbox chan []byte
}

// NewConn creates a connection manager. Nothing is dialed until
// Connect is called.
func NewConn(cfg SocketConfig, policy ReconnectPolicy, clock clockwork.Clock, bus *session.Bus) *Conn {
	return &Conn{
		cfg:    cfg,
		policy: policy,
		clock:  clock,
		bus:    bus,
		inbox:  make(chan []byte, 256),
	}
}

// State returns the current connection state
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Inbox delivers raw inbound frames in arrival order. Consumed by the
// client's apply loop.
func (c *Conn) Inbox() <-chan []byte {
	return c.inbox
}

// Connect opens the socket to the endpoint, authenticating with the
// token. Fails fast on an empty or sentinel token. No-op when already
// connected or connecting.
func (c *Conn) Connect(endpoint, authToken string) error {
	if authToken == "" || authToken == tokenSentinel {
		return ErrInvalidCredential
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.endpoint = endpoint
	c.token = authToken
	c.userClosed = false
	c.exhausted = false
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()

		c.bus.Publish(session.Event{Type: session.EventConnectionError, Err: err})
		return err
	}
	return nil
}

// Disconnect closes the socket and suppresses any automatic reconnect
// triggered by this closure. Idempotent; also cancels a pending
// reconnect timer.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.userClosed = true
	c.cancelReconnectLocked()

	if c.state == StateDisconnected && c.socket == nil {
		c.mu.Unlock()
		return
	}
	c.detachSocketLocked(websocket.CloseNormalClosure)
	c.state = StateDisconnected
	c.mu.Unlock()

	c.bus.Publish(session.Event{
		Type:   session.EventDisconnected,
		Code:   websocket.CloseNormalClosure,
		Reason: "user closed",
	})
	log.Info().Msg("disconnected")
}

// Reconnect forces closure of any existing socket, resets the backoff
// attempt counter and dials again with the stored credentials.
func (c *Conn) Reconnect() error {
	c.mu.Lock()
	c.cancelReconnectLocked()
	c.detachSocketLocked(websocket.CloseServiceRestart)
	c.state = StateDisconnected
	c.userClosed = false
	c.exhausted = false
	c.policy.Reset()
	endpoint, token := c.endpoint, c.token
	c.mu.Unlock()

	return c.Connect(endpoint, token)
}

// SetAuthToken swaps the credential. Unchanged tokens are a no-op. A
// change while connected or connecting tears the socket down and
// reconnects with the new token; a change while disconnected is only
// stored.
func (c *Conn) SetAuthToken(token string) error {
	c.mu.Lock()
	if token == c.token {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	state := c.state
	c.mu.Unlock()

	if state == StateConnected || state == StateConnecting {
		return c.Reconnect()
	}
	return nil
}

// Send writes one raw frame. Fails with ErrNotConnected while the
// socket is not open; outbound frames are never buffered across
// disconnects.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if c.state != StateConnected || c.sendCh == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	sendCh := c.sendCh
	c.mu.Unlock()

	select {
	case sendCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// dial opens the socket and attaches the pumps on success
func (c *Conn) dial() error {
	c.mu.Lock()
	endpoint, token := c.endpoint, c.token
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	socket, _, err := dialer.Dial(endpoint, authHeader(token))
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	sendCh := make(chan []byte, 256)
	stopCh := make(chan struct{})

	c.mu.Lock()
	c.socket = socket
	c.sendCh = sendCh
	c.stopCh = stopCh
	c.state = StateConnected
	c.policy.Reset()
	c.mu.Unlock()

	go c.readPump(socket, stopCh)
	go c.writePump(socket, sendCh, stopCh)

	log.Info().Str("endpoint", endpoint).Msg("connected")
	c.bus.Publish(session.Event{Type: session.EventConnected})
	return nil
}

// readPump reads frames from one socket and delivers them to the
// inbox. Runs until the socket fails or is closed; a detach while the
// inbox is backlogged releases the pump instead of waiting for a
// consumer.
func (c *Conn) readPump(socket *websocket.Conn, stopCh chan struct{}) {
	socket.SetReadLimit(c.cfg.MaxMessageSize)
	socket.SetReadDeadline(c.clock.Now().Add(c.cfg.ReadTimeout))
	socket.SetPongHandler(func(string) error {
		socket.SetReadDeadline(c.clock.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := socket.ReadMessage()
		if err != nil {
			c.handleClosed(socket, err)
			return
		}
		socket.SetReadDeadline(c.clock.Now().Add(c.cfg.ReadTimeout))
		select {
		case c.inbox <- message:
		case <-stopCh:
			return
		}
	}
}

// writePump serializes writes to one socket and keeps it alive with
// pings.
func (c *Conn) writePump(socket *websocket.Conn, sendCh chan []byte, stopCh chan struct{}) {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case message := <-sendCh:
			socket.SetWriteDeadline(c.clock.Now().Add(c.cfg.WriteTimeout))
			if err := socket.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Msg("failed to write message")
				return
			}
		case <-ticker.Chan():
			socket.SetWriteDeadline(c.clock.Now().Add(c.cfg.WriteTimeout))
			if err := socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

// handleClosed reacts to a socket read failure. User-initiated closes
// were already detached and are ignored here; link drops surface a
// Disconnected signal and schedule a reconnect.
func (c *Conn) handleClosed(socket *websocket.Conn, err error) {
	c.mu.Lock()
	if c.socket != socket {
		// Already detached by Disconnect/Reconnect; the signal for
		// that closure was published there.
		c.mu.Unlock()
		return
	}
	c.detachSocketLocked(0)
	c.state = StateDisconnected

	code := websocket.CloseAbnormalClosure
	reason := err.Error()
	if closeErr, ok := err.(*websocket.CloseError); ok {
		code = closeErr.Code
		reason = closeErr.Text
	}

	abnormal := code != websocket.CloseNormalClosure && !c.userClosed
	if abnormal {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	log.Warn().Int("code", code).Str("reason", reason).Msg("socket closed")
	c.bus.Publish(session.Event{Type: session.EventDisconnected, Code: code, Reason: reason})
}

// detachSocketLocked closes the current socket and stops its pumps.
// Caller holds the lock. closeCode 0 skips the close handshake (the
// socket already failed).
func (c *Conn) detachSocketLocked(closeCode int) {
	if c.socket == nil {
		return
	}
	if closeCode != 0 {
		deadline := c.clock.Now().Add(c.cfg.WriteTimeout)
		c.socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCode, ""), deadline)
	}
	c.socket.Close()
	c.socket = nil
	close(c.stopCh)
	c.sendCh = nil
}

// scheduleReconnectLocked arms the backoff timer for the next attempt,
// or surfaces ReconnectExhausted exactly once when the cap is reached.
// Caller holds the lock.
func (c *Conn) scheduleReconnectLocked() {
	if c.reconnectTimer != nil || c.userClosed {
		return
	}

	delay, ok := c.policy.NextDelay()
	if !ok {
		if !c.exhausted {
			c.exhausted = true
			log.Error().Int("max_attempts", c.policy.MaxAttempts).Msg("reconnect attempts exhausted")
			c.bus.Publish(session.Event{
				Type: session.EventReconnectExhausted,
				Err:  ErrReconnectExhausted,
			})
		}
		return
	}

	log.Info().
		Int("attempt", c.policy.Attempt).
		Dur("delay", delay).
		Msg("scheduling reconnect attempt")

	timer := c.clock.NewTimer(delay)
	stop := make(chan struct{})
	c.reconnectTimer = timer
	c.reconnectStop = stop

	go func() {
		select {
		case <-timer.Chan():
			c.mu.Lock()
			c.reconnectTimer = nil
			c.reconnectStop = nil
			c.mu.Unlock()
			c.attemptReconnect()
		case <-stop:
			stopAndDrainTimer(timer)
		}
	}()
}

// attemptReconnect dials again after a backoff delay fired
func (c *Conn) attemptReconnect() {
	c.mu.Lock()
	if c.userClosed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()

		log.Warn().Err(err).Msg("reconnect attempt failed")
		c.bus.Publish(session.Event{Type: session.EventConnectionError, Err: err})
	}
}

// cancelReconnectLocked stops a pending reconnect timer. Caller holds
// the lock.
func (c *Conn) cancelReconnectLocked() {
	if c.reconnectTimer == nil {
		return
	}
	close(c.reconnectStop)
	c.reconnectTimer = nil
	c.reconnectStop = nil
}

// stopAndDrainTimer safely stops a timer and drains its channel so no
// goroutine is left blocked on it.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
