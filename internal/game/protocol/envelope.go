package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire format for all server messages: a discriminated
// JSON object carrying a type tag and an opaque payload.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessageType identifies the kind of message inside an envelope
type MessageType string

const (
	MessageTypeConnectionEstablished MessageType = "connection_established"
	MessageTypeLobbyState            MessageType = "lobby_state"
	MessageTypeLobbiesUpdate         MessageType = "lobbies_update"
	MessageTypeGameState             MessageType = "game_state"
	MessageTypeDrawingUpdate         MessageType = "drawing_update"
	MessageTypeLobbyJoined           MessageType = "lobby_joined"
	MessageTypeError                 MessageType = "error"
)

// Known reports whether the message type belongs to the server's
// recognized vocabulary. Unknown envelopes are kept, not dropped, so
// observers can signal them.
func (t MessageType) Known() bool {
	switch t {
	case MessageTypeConnectionEstablished,
		MessageTypeLobbyState,
		MessageTypeLobbiesUpdate,
		MessageTypeGameState,
		MessageTypeDrawingUpdate,
		MessageTypeLobbyJoined,
		MessageTypeError:
		return true
	}
	return false
}

// DecodeError reports a malformed envelope or payload. It is non-fatal:
// the envelope is discarded and the session continues.
type DecodeError struct {
	MessageType MessageType
	Err         error
}

func (e *DecodeError) Error() string {
	if e.MessageType == "" {
		return fmt.Sprintf("decode envelope: %v", e.Err)
	}
	return fmt.Sprintf("decode %s payload: %v", e.MessageType, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses a raw text frame into an Envelope. A missing type tag
// is a decode failure; an unrecognized type tag is not.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if env.Type == "" {
		return nil, &DecodeError{Err: fmt.Errorf("missing type field")}
	}
	return &env, nil
}

// Encode builds the raw text frame for an outbound envelope
func Encode(msgType MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	raw, err := json.Marshal(Envelope{Type: msgType, Payload: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return raw, nil
}

// ParsePayload parses an envelope's payload into the matching typed
// structure. Returns (nil, nil) for recognized types that carry no
// required fields and for unknown types; the caller decides how to
// signal the latter.
func ParsePayload(env *Envelope) (any, error) {
	switch env.Type {
	case MessageTypeConnectionEstablished:
		return nil, nil

	case MessageTypeLobbyState:
		return DecodeLobbyState(env.Payload)

	case MessageTypeLobbiesUpdate:
		return DecodeLobbiesUpdate(env.Payload)

	case MessageTypeGameState:
		return DecodeGameState(env.Payload)

	case MessageTypeDrawingUpdate:
		return DecodeDrawingUpdate(env.Payload)

	case MessageTypeLobbyJoined:
		return DecodeLobbyJoined(env.Payload)

	case MessageTypeError:
		return DecodeServerError(env.Payload)

	default:
		return nil, nil // unknown type, retained by caller
	}
}
