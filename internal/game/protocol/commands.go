package protocol

import (
	"time"
)

// Outbound command vocabulary. Commands are user-initiated events
// encoded through the same envelope format the server speaks.

// CommandType identifies an outbound command
type CommandType string

const (
	CommandJoinLobby   CommandType = "join_lobby"
	CommandLeaveLobby  CommandType = "leave_lobby"
	CommandDrawing     CommandType = "drawing_update"
	CommandGuess       CommandType = "guess"
	CommandRateDrawing CommandType = "rate_drawing"
	CommandChat        CommandType = "chat_message"
)

// JoinLobbyCommand asks the server to add the user to a lobby
type JoinLobbyCommand struct {
	LobbyID string `json:"lobbyId"`
	UserID  string `json:"userId"`
}

// LeaveLobbyCommand asks the server to remove the user from a lobby
type LeaveLobbyCommand struct {
	LobbyID string `json:"lobbyId"`
}

// DrawingCommand carries a drawing paths blob for the current game.
// Paths is pre-encoded JSON, passed through opaquely.
type DrawingCommand struct {
	Type      string `json:"type"`
	GameID    string `json:"game_id"`
	Timestamp string `json:"timestamp"`
	Paths     string `json:"paths"`
}

// GuessCommand carries a word guess for the current round
type GuessCommand struct {
	Type      string `json:"type"`
	GameID    string `json:"game_id"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
	Guess     string `json:"guess"`
}

// RateDrawingCommand carries a rating for another player's drawing
type RateDrawingCommand struct {
	Type      string `json:"type"`
	GameID    string `json:"game_id"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
	TargetID  string `json:"target_user_id"`
	Rating    int    `json:"rating"`
}

// ChatCommand carries a chat line scoped to the current game
type ChatCommand struct {
	Type      string `json:"type"`
	GameID    string `json:"game_id"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

// CommandTimestamp formats the timestamp field the server expects on
// game-scoped commands.
func CommandTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// EncodeCommand builds the raw frame for an outbound command envelope
func EncodeCommand(cmdType CommandType, payload any) ([]byte, error) {
	return Encode(MessageType(cmdType), payload)
}
