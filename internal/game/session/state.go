package session

import (
	"time"
)

// GameState is the lifecycle state of a game as reported by the server
type GameState string

const (
	StateWaiting     GameState = "WAITING"
	StateDrawing     GameState = "DRAWING"
	StateVoting      GameState = "VOTING"
	StateLeaderboard GameState = "LEADERBOARD"
	StateFinished    GameState = "FINISHED"
)

// Documented defaults substituted during reconciliation when the lobby
// configuration is also absent.
const (
	DefaultTotalRounds   = 3
	DefaultRoundDuration = 60 * time.Second
)

// Active reports whether a countdown should be running in this state
func (s GameState) Active() bool {
	return s == StateDrawing || s == StateVoting
}

// Terminal reports whether this state ends any running countdown
func (s GameState) Terminal() bool {
	return s == StateFinished || s == StateWaiting
}

// Player is a lobby roster entry. Equality is by UserID only.
type Player struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
}

// LobbySnapshot is the best-known state of the joined lobby
type LobbySnapshot struct {
	LobbyID          string   `json:"lobby_id"`
	Name             string   `json:"name"`
	HostID           string   `json:"host_id"`
	Locked           bool     `json:"locked"`
	MaxPlayers       int      `json:"max_players"`
	NumRounds        int      `json:"num_rounds"`
	RoundDurationSec int      `json:"round_duration_seconds"`
	Players          []Player `json:"players"`

	// HostUnresolved is set when HostID does not reference any roster
	// member; the id is kept until a later update supplies the entry.
	HostUnresolved bool `json:"host_unresolved,omitempty"`
}

// HasPlayer reports whether the roster contains the given user
func (l *LobbySnapshot) HasPlayer(userID string) bool {
	for _, p := range l.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// UpsertPlayer adds or updates a roster entry, preserving insertion
// order. Duplicate deliveries therefore never grow the roster.
func (l *LobbySnapshot) UpsertPlayer(p Player) {
	for i := range l.Players {
		if l.Players[i].UserID == p.UserID {
			l.Players[i] = p
			return
		}
	}
	l.Players = append(l.Players, p)
}

// RemovePlayer drops a roster entry by user id
func (l *LobbySnapshot) RemovePlayer(userID string) {
	for i := range l.Players {
		if l.Players[i].UserID == userID {
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy safe to hand to subscribers
func (l *LobbySnapshot) Clone() *LobbySnapshot {
	if l == nil {
		return nil
	}
	out := *l
	out.Players = append([]Player(nil), l.Players...)
	return &out
}

// GameSnapshot is the best-known state of the active game
type GameSnapshot struct {
	GameID           string         `json:"game_id"`
	LobbyID          string         `json:"lobby_id"`
	State            GameState      `json:"state"`
	CurrentRound     int            `json:"current_round"`
	TotalRounds      int            `json:"total_rounds"`
	CurrentDrawerID  string         `json:"current_drawer_id"`
	CurrentWord      string         `json:"current_word"`
	TimeRemainingSec int            `json:"time_remaining_seconds"`
	PlayerScores     map[string]int `json:"player_scores"`
	DrawingPaths     string         `json:"drawing_paths,omitempty"`

	// Recovered marks a degraded-but-valid snapshot where missing
	// authoritative fields were repaired locally.
	Recovered bool `json:"recovered,omitempty"`

	// WordPending is set when the local viewer is the drawer but the
	// server has not supplied the word yet. The client never fabricates
	// one; it waits for the next authoritative update.
	WordPending bool `json:"word_pending,omitempty"`
}

// Clone returns a deep copy safe to hand to subscribers
func (g *GameSnapshot) Clone() *GameSnapshot {
	if g == nil {
		return nil
	}
	out := *g
	if g.PlayerScores != nil {
		out.PlayerScores = make(map[string]int, len(g.PlayerScores))
		for k, v := range g.PlayerScores {
			out.PlayerScores[k] = v
		}
	}
	return &out
}
