package client

import (
	"errors"
)

var (
	// ErrInvalidCredential is returned by Connect when the auth token
	// is empty or the unauthenticated sentinel. The client refuses to
	// open a socket that the server would reject.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrNotConnected is returned when a send is attempted while the
	// socket is not open. Callers decide whether to retry or drop;
	// outbound commands are never buffered across disconnects.
	ErrNotConnected = errors.New("not connected")

	// ErrReconnectExhausted is surfaced once the reconnect attempt cap
	// is reached. Terminal: recovering requires user action.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrSendBufferFull is returned when the outbound buffer cannot
	// accept another frame. Transient: the write pump is draining.
	ErrSendBufferFull = errors.New("send buffer full")
)
