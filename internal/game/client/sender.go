package client

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/sketchsync/internal/game/protocol"
)

// Sender encodes and transmits user-initiated commands through the
// connection. Sends fail with ErrNotConnected while the socket is
// closed; nothing is queued, so stale user intents are never replayed
// after a reconnect.
type Sender struct {
	conn  *Conn
	clock clockwork.Clock
}

// NewSender creates a command sender over the given connection
func NewSender(conn *Conn, clock clockwork.Clock) *Sender {
	return &Sender{conn: conn, clock: clock}
}

// Send encodes and transmits one command envelope
func (s *Sender) Send(cmdType protocol.CommandType, payload any) error {
	raw, err := protocol.EncodeCommand(cmdType, payload)
	if err != nil {
		return fmt.Errorf("encode %s command: %w", cmdType, err)
	}
	if err := s.conn.Send(raw); err != nil {
		return fmt.Errorf("send %s command: %w", cmdType, err)
	}
	return nil
}

// JoinLobby asks the server to add the user to a lobby
func (s *Sender) JoinLobby(lobbyID, userID string) error {
	return s.Send(protocol.CommandJoinLobby, protocol.JoinLobbyCommand{
		LobbyID: lobbyID,
		UserID:  userID,
	})
}

// LeaveLobby asks the server to remove the user from a lobby
func (s *Sender) LeaveLobby(lobbyID string) error {
	return s.Send(protocol.CommandLeaveLobby, protocol.LeaveLobbyCommand{
		LobbyID: lobbyID,
	})
}

// SendDrawing transmits the current drawing paths blob
func (s *Sender) SendDrawing(gameID, paths string) error {
	return s.Send(protocol.CommandDrawing, protocol.DrawingCommand{
		Type:      string(protocol.CommandDrawing),
		GameID:    gameID,
		Timestamp: protocol.CommandTimestamp(s.clock.Now()),
		Paths:     paths,
	})
}

// SendGuess transmits a word guess for the current round
func (s *Sender) SendGuess(gameID, userID, guess string) error {
	return s.Send(protocol.CommandGuess, protocol.GuessCommand{
		Type:      string(protocol.CommandGuess),
		GameID:    gameID,
		Timestamp: protocol.CommandTimestamp(s.clock.Now()),
		UserID:    userID,
		Guess:     guess,
	})
}

// RateDrawing transmits a rating for another player's drawing
func (s *Sender) RateDrawing(gameID, userID, targetID string, rating int) error {
	return s.Send(protocol.CommandRateDrawing, protocol.RateDrawingCommand{
		Type:      string(protocol.CommandRateDrawing),
		GameID:    gameID,
		Timestamp: protocol.CommandTimestamp(s.clock.Now()),
		UserID:    userID,
		TargetID:  targetID,
		Rating:    rating,
	})
}

// SendChat transmits a chat line scoped to the current game
func (s *Sender) SendChat(gameID, userID, message string) error {
	return s.Send(protocol.CommandChat, protocol.ChatCommand{
		Type:      string(protocol.CommandChat),
		GameID:    gameID,
		Timestamp: protocol.CommandTimestamp(s.clock.Now()),
		UserID:    userID,
		Message:   message,
	})
}
