package session

import (
	"sync"

	"github.com/mcdev12/sketchsync/internal/game/protocol"
)

// Store holds the authoritative-as-known lobby and game snapshots for
// one session. Snapshots are mutated only by the reconciler, which runs
// on a single apply goroutine; the lock exists for concurrent readers
// (timer controller, debug endpoint), never for concurrent writers.
type Store struct {
	mu sync.RWMutex

	localUserID   string
	joinedLobbyID string

	lobby     *LobbySnapshot
	game      *GameSnapshot
	directory []protocol.LobbyInfo
}

// NewStore creates an empty session store for the given local user
func NewStore(localUserID string) *Store {
	return &Store{localUserID: localUserID}
}

// LocalUserID returns the user this session belongs to
func (s *Store) LocalUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localUserID
}

// JoinedLobbyID returns the lobby the session is currently joined to,
// or "" when not joined.
func (s *Store) JoinedLobbyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joinedLobbyID
}

// SetJoined records the lobby the session has joined
func (s *Store) SetJoined(lobbyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinedLobbyID = lobbyID
}

// Lobby returns a copy of the current lobby snapshot, or nil
func (s *Store) Lobby() *LobbySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lobby.Clone()
}

// Game returns a copy of the current game snapshot, or nil
func (s *Store) Game() *GameSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.game.Clone()
}

// Directory returns the latest known lobby directory
func (s *Store) Directory() []protocol.LobbyInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.LobbyInfo(nil), s.directory...)
}

// commitLobby replaces the lobby snapshot. Reconciler only.
func (s *Store) commitLobby(l *LobbySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobby = l
}

// commitGame replaces the game snapshot. Reconciler only.
func (s *Store) commitGame(g *GameSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game = g
}

// commitDirectory replaces the lobby directory. Reconciler only.
func (s *Store) commitDirectory(lobbies []protocol.LobbyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directory = lobbies
}

// Reset discards all session state. Called when the session ends:
// explicit leave, fatal disconnect, or navigation away.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinedLobbyID = ""
	s.lobby = nil
	s.game = nil
	s.directory = nil
}
