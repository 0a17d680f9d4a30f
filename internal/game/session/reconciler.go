package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sketchsync/internal/game/protocol"
)

// Reconciler merges decoded envelopes into the session store, repairing
// missing or inconsistent authoritative fields along the way. All
// repairs are monotonic: nothing here raises a fatal error, and a
// decode failure is the only error forwarded upward.
//
// Apply must only be called from the single apply goroutine; the
// ordering guarantees the recovery heuristics depend on (in particular
// duplicate-fingerprint suppression) hold only when envelopes are
// applied strictly in arrival order.
type Reconciler struct {
	store *Store
	bus   *Bus

	// memMu guards the per-session memory below; Reset is called from
	// the disconnect path, off the apply goroutine.
	memMu           sync.Mutex
	lastFingerprint *Fingerprint
	startedGames    map[string]bool
}

// NewReconciler creates a reconciler over the given store and bus
func NewReconciler(store *Store, bus *Bus) *Reconciler {
	return &Reconciler{
		store:        store,
		bus:          bus,
		startedGames: make(map[string]bool),
	}
}

// Reset discards per-session reconciliation memory. Fingerprints and
// observed start transitions live only for one session; after a
// disconnect the server legitimately re-sends identical state for the
// new session and it must not be suppressed as a duplicate.
func (r *Reconciler) Reset() {
	r.memMu.Lock()
	defer r.memMu.Unlock()
	r.lastFingerprint = nil
	r.startedGames = make(map[string]bool)
}

// Apply reconciles one decoded envelope into the store and notifies
// subscribers at most once.
func (r *Reconciler) Apply(env *protocol.Envelope) error {
	switch env.Type {
	case protocol.MessageTypeConnectionEstablished:
		log.Debug().Msg("server confirmed connection")
		return nil

	case protocol.MessageTypeLobbyJoined:
		return r.applyLobbyJoined(env)

	case protocol.MessageTypeLobbyState:
		return r.applyLobbyState(env)

	case protocol.MessageTypeLobbiesUpdate:
		return r.applyLobbiesUpdate(env)

	case protocol.MessageTypeGameState:
		return r.applyGameState(env)

	case protocol.MessageTypeDrawingUpdate:
		return r.applyDrawingUpdate(env)

	case protocol.MessageTypeError:
		return r.applyServerError(env)

	default:
		log.Warn().Str("message_type", string(env.Type)).Msg("unknown envelope type")
		r.bus.Publish(Event{Type: EventUnknownEnvelope, MessageType: env.Type})
		return nil
	}
}

func (r *Reconciler) applyLobbyJoined(env *protocol.Envelope) error {
	payload, err := protocol.DecodeLobbyJoined(env.Payload)
	if err != nil {
		return err
	}
	if payload.UserID != "" && payload.UserID != r.store.LocalUserID() {
		return nil // someone else's join confirmation
	}
	if payload.LobbyID == "" {
		return nil
	}

	r.store.SetJoined(payload.LobbyID)
	log.Info().Str("lobby_id", payload.LobbyID).Msg("joined lobby")
	return nil
}

func (r *Reconciler) applyLobbyState(env *protocol.Envelope) error {
	payload, err := protocol.DecodeLobbyState(env.Payload)
	if err != nil {
		return err
	}

	lobbyID := payload.Lobby.LobbyID
	joined := r.store.JoinedLobbyID()

	// Identity gate: stale cross-talk from a prior session is ignored.
	// When not yet joined, the first lobby_state adopts the lobby.
	if joined != "" && lobbyID != "" && lobbyID != joined {
		log.Debug().
			Str("lobby_id", lobbyID).
			Str("joined_lobby_id", joined).
			Msg("ignoring lobby_state for foreign lobby")
		return nil
	}
	if joined == "" && lobbyID != "" {
		r.store.SetJoined(lobbyID)
	}

	next := r.store.Lobby()
	if next == nil || (lobbyID != "" && next.LobbyID != lobbyID) {
		next = &LobbySnapshot{LobbyID: lobbyID}
	}

	// Config fields only overwrite when the server actually sent them
	if payload.Lobby.Name != "" {
		next.Name = payload.Lobby.Name
	}
	if payload.Lobby.MaxPlayers > 0 {
		next.MaxPlayers = payload.Lobby.MaxPlayers
	}
	if payload.Lobby.NumRounds > 0 {
		next.NumRounds = payload.Lobby.NumRounds
	}
	if payload.Lobby.RoundDurationSec > 0 {
		next.RoundDurationSec = payload.Lobby.RoundDurationSec
	}
	next.Locked = payload.Lobby.Locked

	r.applyRoster(next, payload)
	r.resolveHost(next, payload)

	if next.MaxPlayers > 0 && len(next.Players) > next.MaxPlayers {
		// Transient over-capacity window; a later authoritative roster
		// is expected to shrink it.
		log.Warn().
			Str("lobby_id", next.LobbyID).
			Int("players", len(next.Players)).
			Int("max_players", next.MaxPlayers).
			Msg("lobby roster over capacity")
	}

	r.store.commitLobby(next)
	r.bus.Publish(Event{Type: EventLobbySnapshot, Lobby: next.Clone()})
	return nil
}

// applyRoster merges the payload's player list into the snapshot. A
// full list replaces the roster (deduplicated by user id, payload order
// preserved); an event-only payload adjusts the single affected entry.
func (r *Reconciler) applyRoster(next *LobbySnapshot, payload *protocol.LobbyStatePayload) {
	if len(payload.Players) > 0 {
		merged := make([]Player, 0, len(payload.Players))
		seen := make(map[string]bool, len(payload.Players))
		for _, pi := range payload.Players {
			if pi.UserID == "" || seen[pi.UserID] {
				continue
			}
			seen[pi.UserID] = true
			merged = append(merged, Player{UserID: pi.UserID, Username: pi.Username, Ready: pi.Ready})
		}
		next.Players = merged
		return
	}

	switch payload.Event {
	case "joined":
		if payload.UserID != "" {
			next.UpsertPlayer(Player{UserID: payload.UserID})
		}
	case "left":
		if payload.UserID != "" {
			next.RemovePlayer(payload.UserID)
		}
	}
}

// resolveHost applies the host/roster consistency rule: an unknown host
// id is kept but flagged unresolved until the roster catches up.
func (r *Reconciler) resolveHost(next *LobbySnapshot, payload *protocol.LobbyStatePayload) {
	hostID := payload.Lobby.HostID
	if hostID == "" && payload.HostUser != nil {
		hostID = payload.HostUser.UserID
	}
	if hostID != "" {
		next.HostID = hostID
	}

	if next.HostID == "" {
		return
	}
	if len(next.Players) > 0 && !next.HasPlayer(next.HostID) {
		if !next.HostUnresolved {
			log.Warn().
				Str("lobby_id", next.LobbyID).
				Str("host_id", next.HostID).
				Msg("host not in roster, keeping id as unresolved")
		}
		next.HostUnresolved = true
		return
	}
	next.HostUnresolved = false
}

func (r *Reconciler) applyLobbiesUpdate(env *protocol.Envelope) error {
	payload, err := protocol.DecodeLobbiesUpdate(env.Payload)
	if err != nil {
		return err
	}

	r.store.commitDirectory(payload.Lobbies)
	r.bus.Publish(Event{Type: EventLobbyDirectory, Lobbies: payload.Lobbies})
	return nil
}

func (r *Reconciler) applyGameState(env *protocol.Envelope) error {
	payload, err := protocol.DecodeGameState(env.Payload)
	if err != nil {
		return err
	}

	// Identity gate
	joined := r.store.JoinedLobbyID()
	if joined != "" && payload.Game.LobbyID != "" && payload.Game.LobbyID != joined {
		log.Debug().
			Str("game_id", payload.Game.GameID).
			Str("lobby_id", payload.Game.LobbyID).
			Str("joined_lobby_id", joined).
			Msg("ignoring game_state for foreign lobby")
		return nil
	}

	// Duplicate suppression. The transport may redeliver the same
	// logical update through more than one path; applying it twice
	// must not double-trigger downstream effects.
	fp := FingerprintOf(payload)
	r.memMu.Lock()
	duplicate := r.lastFingerprint != nil && *r.lastFingerprint == fp
	if !duplicate {
		r.lastFingerprint = &fp
	}
	r.memMu.Unlock()
	if duplicate {
		log.Debug().
			Str("game_id", fp.GameID).
			Int("round", fp.Round).
			Str("event", fp.Event).
			Msg("suppressing duplicate game_state delivery")
		return nil
	}

	lobby := r.store.Lobby()
	next := r.buildGameSnapshot(payload, lobby)
	r.detectMissedStart(next, payload)
	r.recoverGameFields(next, lobby, payload)

	r.store.commitGame(next)
	r.bus.Publish(Event{Type: EventGameSnapshot, Game: next.Clone()})
	return nil
}

// buildGameSnapshot assembles the next snapshot from the payload,
// preferring the embedded game object and falling back to the
// duplicated top-level fields.
func (r *Reconciler) buildGameSnapshot(payload *protocol.GameStatePayload, lobby *LobbySnapshot) *GameSnapshot {
	prev := r.store.Game()

	next := &GameSnapshot{
		GameID:           payload.Game.GameID,
		LobbyID:          payload.Game.LobbyID,
		CurrentRound:     payload.Game.CurrentRound,
		TotalRounds:      payload.Game.TotalRounds,
		CurrentDrawerID:  payload.Game.CurrentDrawerID,
		CurrentWord:      payload.CurrentWord,
		TimeRemainingSec: payload.TimeRemainingSec,
		PlayerScores:     payload.PlayerScores,
	}

	if next.LobbyID == "" && lobby != nil {
		next.LobbyID = lobby.LobbyID
	}
	if next.CurrentRound == 0 {
		next.CurrentRound = payload.RoundNumber
	}
	if prev != nil && prev.GameID == next.GameID {
		next.DrawingPaths = prev.DrawingPaths
	}
	if len(payload.Drawings) > 0 {
		next.DrawingPaths = payload.Drawings[len(payload.Drawings)-1]
	}

	next.State = parseGameState(payload.Game.State)
	if next.State == "" {
		switch {
		case payload.Event == "started":
			next.State = StateDrawing
		case prev != nil && prev.GameID == next.GameID:
			next.State = prev.State
		default:
			next.State = StateWaiting
		}
	}
	return next
}

// detectMissedStart guards against the start notification being dropped
// while a later full-state update still arrives: a game id never seen
// to start is treated as if the start event had been received.
func (r *Reconciler) detectMissedStart(next *GameSnapshot, payload *protocol.GameStatePayload) {
	if next.GameID == "" {
		return
	}
	r.memMu.Lock()
	defer r.memMu.Unlock()
	if payload.Event == "started" {
		r.startedGames[next.GameID] = true
		return
	}
	if !r.startedGames[next.GameID] {
		log.Info().
			Str("game_id", next.GameID).
			Str("event", payload.Event).
			Msg("synthesizing missed game start transition")
		r.startedGames[next.GameID] = true
		next.Recovered = true
		if next.State == StateWaiting {
			next.State = StateDrawing
		}
	}
}

// recoverGameFields repairs fields the server is expected to set but
// may omit under race conditions. Repaired snapshots are marked
// Recovered so observers can tell them from server-confirmed ones.
func (r *Reconciler) recoverGameFields(next *GameSnapshot, lobby *LobbySnapshot, payload *protocol.GameStatePayload) {
	if next.CurrentDrawerID == "" {
		// Deterministic: first roster member in stable order. The
		// lobby roster is preferred; a roster embedded in the game
		// object covers the case where no lobby_state arrived yet.
		if lobby != nil && len(lobby.Players) > 0 {
			next.CurrentDrawerID = lobby.Players[0].UserID
		} else if len(payload.Game.Players) > 0 {
			next.CurrentDrawerID = payload.Game.Players[0].UserID
		}
		if next.CurrentDrawerID != "" {
			next.Recovered = true
			log.Warn().
				Str("game_id", next.GameID).
				Str("drawer_id", next.CurrentDrawerID).
				Msg("server omitted drawer, assigned first roster member")
		}
	}

	if next.CurrentRound <= 0 {
		next.CurrentRound = 1
		next.Recovered = true
	}

	if next.TotalRounds <= 0 {
		if lobby != nil && lobby.NumRounds > 0 {
			next.TotalRounds = lobby.NumRounds
		} else {
			next.TotalRounds = DefaultTotalRounds
		}
		next.Recovered = true
	}

	if next.TimeRemainingSec <= 0 && next.State.Active() {
		if lobby != nil && lobby.RoundDurationSec > 0 {
			next.TimeRemainingSec = lobby.RoundDurationSec
		} else {
			next.TimeRemainingSec = int(DefaultRoundDuration.Seconds())
		}
		next.Recovered = true
	}

	// Fabricating a guessable word is a server responsibility. When the
	// local viewer is the drawer and the word is missing, the field is
	// marked pending until the next authoritative update.
	if next.CurrentWord == "" && next.CurrentDrawerID != "" &&
		next.CurrentDrawerID == r.store.LocalUserID() {
		next.WordPending = true
	}
}

func (r *Reconciler) applyDrawingUpdate(env *protocol.Envelope) error {
	payload, err := protocol.DecodeDrawingUpdate(env.Payload)
	if err != nil {
		return err
	}

	game := r.store.Game()
	if game == nil || (payload.GameID != "" && payload.GameID != game.GameID) {
		log.Debug().Str("game_id", payload.GameID).Msg("ignoring drawing_update for foreign game")
		return nil
	}

	game.DrawingPaths = payload.Paths
	r.store.commitGame(game)
	// Stroke traffic is steady during a round; it must not flow through
	// the snapshot event the round timer re-arms from, or the countdown
	// would reseed on every stroke.
	r.bus.Publish(Event{Type: EventDrawingChanged, Game: game.Clone()})
	return nil
}

func (r *Reconciler) applyServerError(env *protocol.Envelope) error {
	payload, err := protocol.DecodeServerError(env.Payload)
	if err != nil {
		return err
	}

	log.Warn().Str("message", payload.Message).Msg("server reported error")
	r.bus.Publish(Event{
		Type: EventConnectionError,
		Err:  fmt.Errorf("server: %s", payload.Message),
	})
	return nil
}

// parseGameState normalizes a wire state string, returning "" when it
// is absent or outside the known vocabulary.
func parseGameState(s string) GameState {
	switch GameState(strings.ToUpper(s)) {
	case StateWaiting:
		return StateWaiting
	case StateDrawing:
		return StateDrawing
	case StateVoting:
		return StateVoting
	case StateLeaderboard:
		return StateLeaderboard
	case StateFinished:
		return StateFinished
	}
	return ""
}
