package protocol

import (
	"encoding/json"
)

// Typed payloads for the recognized inbound envelope vocabulary.
// Decoding is defensive throughout: fields are extracted one by one,
// unknown keys are ignored, and missing optional fields fall back to
// zero values the session layer knows how to repair.

// PlayerInfo is a lobby roster entry as it appears on the wire
type PlayerInfo struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
}

// LobbyInfo is a lobby description as it appears on the wire
type LobbyInfo struct {
	LobbyID          string `json:"lobby_id"`
	Name             string `json:"name"`
	HostID           string `json:"host_id"`
	Locked           bool   `json:"locked"`
	MaxPlayers       int    `json:"max_players"`
	NumRounds        int    `json:"num_rounds"`
	RoundDurationSec int    `json:"round_duration_seconds"`
}

// GameInfo is the game object embedded in a game_state payload
type GameInfo struct {
	GameID          string `json:"game_id"`
	LobbyID         string `json:"lobby_id"`
	State           string `json:"state"`
	CurrentRound    int    `json:"current_round"`
	TotalRounds     int    `json:"total_rounds"`
	CurrentDrawerID string `json:"current_drawer_id"`
	// DrawerPresent distinguishes "server sent no drawer" from
	// "server sent an empty drawer id"; both need recovery but the
	// session logs them differently.
	DrawerPresent bool `json:"-"`
	// Players is the roster as embedded in the game object. Some
	// server states deliver it here before any lobby_state arrives.
	Players []PlayerInfo `json:"players"`
}

// LobbyStatePayload is the payload of a lobby_state envelope
type LobbyStatePayload struct {
	Lobby    LobbyInfo
	Players  []PlayerInfo
	HostUser *PlayerInfo
	Event    string
	UserID   string
}

// LobbiesUpdatePayload is the payload of a lobbies_update envelope
type LobbiesUpdatePayload struct {
	Lobbies []LobbyInfo
	Event   string
}

// GameStatePayload is the payload of a game_state envelope. The server
// duplicates several game fields at the top level; the decoder surfaces
// both so the reconciler can prefer whichever is set.
type GameStatePayload struct {
	Game             GameInfo
	Event            string
	RoundNumber      int
	CurrentWord      string
	TimeRemainingSec int
	Drawings         []string
	PlayerScores     map[string]int
	UserID           string
}

// DrawingUpdatePayload is the payload of a drawing_update envelope.
// Paths is itself JSON-encoded and treated as an opaque blob here.
type DrawingUpdatePayload struct {
	GameID string
	Paths  string
}

// LobbyJoinedPayload is the payload of a lobby_joined envelope
type LobbyJoinedPayload struct {
	LobbyID string
	UserID  string
}

// ServerErrorPayload is the payload of an error envelope
type ServerErrorPayload struct {
	Message string
}

func decodePlayer(m fieldMap) PlayerInfo {
	return PlayerInfo{
		UserID:   m.str("user_id", "userId", "id"),
		Username: m.str("username", "name"),
		Ready:    m.boolean("ready", "is_ready"),
	}
}

func decodeLobby(m fieldMap) LobbyInfo {
	return LobbyInfo{
		LobbyID:          m.str("lobby_id", "lobbyId", "id"),
		Name:             m.str("name", "lobby_name"),
		HostID:           m.str("host_id", "hostId"),
		Locked:           m.boolean("locked", "is_locked"),
		MaxPlayers:       m.integer("max_players", "maxPlayers"),
		NumRounds:        m.integer("num_rounds", "numRounds", "rounds"),
		RoundDurationSec: m.integer("round_duration_seconds", "roundDurationSeconds", "round_duration"),
	}
}

func decodeGame(m fieldMap) GameInfo {
	info := GameInfo{
		GameID:       m.str("game_id", "gameId", "id"),
		LobbyID:      m.str("lobby_id", "lobbyId"),
		State:        m.str("state", "status"),
		CurrentRound: m.integer("current_round", "currentRound"),
		TotalRounds:  m.integer("total_rounds", "totalRounds"),
	}
	// The drawer arrives either as a bare id or as a nested player
	// object, and may be absent entirely under server races.
	if m.has("current_drawer_id", "currentDrawerId") {
		info.CurrentDrawerID = m.str("current_drawer_id", "currentDrawerId")
		info.DrawerPresent = info.CurrentDrawerID != ""
	} else if m.has("current_drawer", "currentDrawer", "drawer") {
		drawer := m.object("current_drawer", "currentDrawer", "drawer")
		info.CurrentDrawerID = drawer.str("user_id", "userId", "id")
		info.DrawerPresent = info.CurrentDrawerID != ""
	}
	for _, pm := range m.objects("players") {
		info.Players = append(info.Players, decodePlayer(pm))
	}
	return info
}

// DecodeLobbyState decodes a lobby_state payload
func DecodeLobbyState(raw json.RawMessage) (*LobbyStatePayload, error) {
	m, err := asFields(raw)
	if err != nil {
		return nil, &DecodeError{MessageType: MessageTypeLobbyState, Err: err}
	}

	payload := &LobbyStatePayload{
		Lobby:  decodeLobby(m.object("lobby")),
		Event:  m.str("event"),
		UserID: m.str("user_id", "userId"),
	}
	for _, pm := range m.objects("players") {
		payload.Players = append(payload.Players, decodePlayer(pm))
	}
	if m.has("host_user", "hostUser") {
		host := decodePlayer(m.object("host_user", "hostUser"))
		payload.HostUser = &host
	}
	return payload, nil
}

// DecodeLobbiesUpdate decodes a lobbies_update payload
func DecodeLobbiesUpdate(raw json.RawMessage) (*LobbiesUpdatePayload, error) {
	m, err := asFields(raw)
	if err != nil {
		return nil, &DecodeError{MessageType: MessageTypeLobbiesUpdate, Err: err}
	}

	payload := &LobbiesUpdatePayload{Event: m.str("event")}
	for _, lm := range m.objects("lobbies") {
		payload.Lobbies = append(payload.Lobbies, decodeLobby(lm))
	}
	return payload, nil
}

// DecodeGameState decodes a game_state payload
func DecodeGameState(raw json.RawMessage) (*GameStatePayload, error) {
	m, err := asFields(raw)
	if err != nil {
		return nil, &DecodeError{MessageType: MessageTypeGameState, Err: err}
	}

	return &GameStatePayload{
		Game:             decodeGame(m.object("game")),
		Event:            m.str("event"),
		RoundNumber:      m.integer("round_number", "roundNumber"),
		CurrentWord:      m.str("current_word", "currentWord"),
		TimeRemainingSec: m.integer("time_remaining_seconds", "timeRemainingSeconds", "time_remaining"),
		Drawings:         m.strings("drawings"),
		PlayerScores:     m.intMap("player_scores", "playerScores"),
		UserID:           m.str("user_id", "userId"),
	}, nil
}

// DecodeDrawingUpdate decodes a drawing_update payload
func DecodeDrawingUpdate(raw json.RawMessage) (*DrawingUpdatePayload, error) {
	m, err := asFields(raw)
	if err != nil {
		return nil, &DecodeError{MessageType: MessageTypeDrawingUpdate, Err: err}
	}

	return &DrawingUpdatePayload{
		GameID: m.str("gameId", "game_id"),
		Paths:  m.str("paths"),
	}, nil
}

// DecodeLobbyJoined decodes a lobby_joined payload
func DecodeLobbyJoined(raw json.RawMessage) (*LobbyJoinedPayload, error) {
	m, err := asFields(raw)
	if err != nil {
		return nil, &DecodeError{MessageType: MessageTypeLobbyJoined, Err: err}
	}

	return &LobbyJoinedPayload{
		LobbyID: m.str("lobbyId", "lobby_id"),
		UserID:  m.str("userId", "user_id"),
	}, nil
}

// DecodeServerError decodes an error payload
func DecodeServerError(raw json.RawMessage) (*ServerErrorPayload, error) {
	m, err := asFields(raw)
	if err != nil {
		return nil, &DecodeError{MessageType: MessageTypeError, Err: err}
	}

	return &ServerErrorPayload{Message: m.str("message", "error")}, nil
}
