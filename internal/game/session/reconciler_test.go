package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/sketchsync/internal/game/protocol"
)

func newTestReconciler(t *testing.T, localUserID string) (*Reconciler, *Store, <-chan Event) {
	t.Helper()

	store := NewStore(localUserID)
	bus := NewBus()
	events := make(chan Event, 64)
	bus.Subscribe(func(ev Event) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Run(ctx)

	return NewReconciler(store, bus), store, events
}

func envelope(t *testing.T, msgType protocol.MessageType, payload string) *protocol.Envelope {
	t.Helper()
	return &protocol.Envelope{Type: msgType, Payload: json.RawMessage(payload)}
}

// countEvents drains events of the given type for a short settle window
func countEvents(events <-chan Event, eventType EventType) int {
	count := 0
	for {
		select {
		case ev := <-events:
			if ev.Type == eventType {
				count++
			}
		case <-time.After(100 * time.Millisecond):
			return count
		}
	}
}

func TestDuplicateGameStateSuppressed(t *testing.T) {
	r, store, events := newTestReconciler(t, "U9")
	store.SetJoined("L1")

	raw := `{
		"game": {"game_id":"G1","lobby_id":"L1","state":"DRAWING","current_round":1,"total_rounds":3,"current_drawer_id":"U1"},
		"event": "round_started",
		"time_remaining_seconds": 60
	}`

	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))

	require.Equal(t, 1, countEvents(events, EventGameSnapshot),
		"duplicate deliveries must commit at most one snapshot change")
}

func TestDrawerRecoveryIsDeterministic(t *testing.T) {
	r, store, _ := newTestReconciler(t, "U9")
	store.SetJoined("L1")
	store.commitLobby(&LobbySnapshot{
		LobbyID: "L1",
		Players: []Player{{UserID: "P1"}, {UserID: "P2"}},
	})

	raw := `{
		"game": {"game_id":"G1","lobby_id":"L1","state":"DRAWING","current_drawer":null},
		"event": "round_started",
		"time_remaining_seconds": 30
	}`
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))

	game := store.Game()
	require.NotNil(t, game)
	require.Equal(t, "P1", game.CurrentDrawerID, "first roster member in stable order")
	require.True(t, game.Recovered)
}

func TestRemainingTimeSubstitution(t *testing.T) {
	cases := []struct {
		name          string
		lobby         *LobbySnapshot
		wantRemaining int
	}{
		{
			name:          "lobby round duration",
			lobby:         &LobbySnapshot{LobbyID: "L1", RoundDurationSec: 90, Players: []Player{{UserID: "P1"}}},
			wantRemaining: 90,
		},
		{
			name:          "documented default when lobby config absent",
			lobby:         &LobbySnapshot{LobbyID: "L1", Players: []Player{{UserID: "P1"}}},
			wantRemaining: int(DefaultRoundDuration.Seconds()),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, store, _ := newTestReconciler(t, "U9")
			store.SetJoined("L1")
			store.commitLobby(tc.lobby)

			raw := `{
				"game": {"game_id":"G1","lobby_id":"L1","state":"DRAWING","current_drawer_id":"P1"},
				"event": "round_started",
				"time_remaining_seconds": 0
			}`
			require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))

			game := store.Game()
			require.NotNil(t, game)
			require.Equal(t, tc.wantRemaining, game.TimeRemainingSec)
			require.Positive(t, game.TimeRemainingSec)
		})
	}
}

func TestRoundAndTotalRoundsRepaired(t *testing.T) {
	r, store, _ := newTestReconciler(t, "U9")
	store.SetJoined("L1")
	store.commitLobby(&LobbySnapshot{LobbyID: "L1", NumRounds: 7, Players: []Player{{UserID: "P1"}}})

	raw := `{
		"game": {"game_id":"G1","lobby_id":"L1","state":"DRAWING","current_round":0,"total_rounds":0,"current_drawer_id":"P1"},
		"event": "round_started",
		"time_remaining_seconds": 45
	}`
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))

	game := store.Game()
	require.NotNil(t, game)
	require.Equal(t, 1, game.CurrentRound)
	require.Equal(t, 7, game.TotalRounds)
}

func TestMissedStartTransitionSynthesized(t *testing.T) {
	r, store, _ := newTestReconciler(t, "U9")
	store.SetJoined("L1")

	// No "started" event was ever observed for G2, yet a later full
	// state update arrives for it.
	raw := `{
		"game": {"game_id":"G2","lobby_id":"L1","current_round":2,"current_drawer_id":"P1",
			"players":[{"user_id":"P1"}]},
		"event": "round_started",
		"time_remaining_seconds": 40
	}`
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))

	game := store.Game()
	require.NotNil(t, game)
	require.True(t, game.Recovered)
	require.Equal(t, StateDrawing, game.State, "synthesized start leaves the game in an active state")
}

func TestIdentityGateIgnoresForeignLobby(t *testing.T) {
	r, store, events := newTestReconciler(t, "U9")
	store.SetJoined("L1")

	raw := `{
		"game": {"game_id":"G1","lobby_id":"L2","state":"DRAWING","current_drawer_id":"P1"},
		"event": "round_started",
		"time_remaining_seconds": 60
	}`
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))

	require.Nil(t, store.Game())
	require.Zero(t, countEvents(events, EventGameSnapshot))
}

func TestHostUnresolvedKeptUntilRosterCatchesUp(t *testing.T) {
	r, store, _ := newTestReconciler(t, "U9")

	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeLobbyState, `{
		"lobby": {"lobby_id":"L1","host_id":"UHOST"},
		"players": [{"user_id":"U1"}],
		"event": "joined"
	}`)))

	lobby := store.Lobby()
	require.NotNil(t, lobby)
	require.Equal(t, "UHOST", lobby.HostID, "host id is kept, not dropped")
	require.True(t, lobby.HostUnresolved)

	// A later update supplies the matching roster entry
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeLobbyState, `{
		"lobby": {"lobby_id":"L1","host_id":"UHOST"},
		"players": [{"user_id":"U1"},{"user_id":"UHOST"}],
		"event": "joined"
	}`)))

	lobby = store.Lobby()
	require.False(t, lobby.HostUnresolved)
}

func TestDuplicateLobbyStateDoesNotGrowRoster(t *testing.T) {
	r, store, _ := newTestReconciler(t, "U1")

	joined := `{
		"lobby": {"lobby_id":"L1","max_players":8},
		"players": [{"user_id":"U1","username":"ann"}],
		"event": "joined",
		"user_id": "U1"
	}`

	// The client re-sends join_lobby defensively on socket resume, so
	// the same lobby_state can arrive more than once.
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeLobbyState, joined)))
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeLobbyState, joined)))

	lobby := store.Lobby()
	require.NotNil(t, lobby)
	require.Len(t, lobby.Players, 1)
	require.Equal(t, "L1", store.JoinedLobbyID())
}

func TestGameStartedEndToEnd(t *testing.T) {
	r, store, events := newTestReconciler(t, "U2")
	store.SetJoined("L1")

	raw := `{
		"game": {"game_id":"G1","lobby_id":"L1",
			"players":[{"user_id":"U1"},{"user_id":"U2"}],
			"current_drawer":null},
		"event": "started"
	}`
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))

	game := store.Game()
	require.NotNil(t, game)
	require.Equal(t, "U1", game.CurrentDrawerID)
	require.Equal(t, 1, game.CurrentRound)
	require.Equal(t, DefaultTotalRounds, game.TotalRounds)
	require.Equal(t, StateDrawing, game.State)
	require.Positive(t, game.TimeRemainingSec, "timer must be armable with a positive duration")
	require.Equal(t, 1, countEvents(events, EventGameSnapshot))
}

func TestWordPendingWhenLocalViewerIsDrawer(t *testing.T) {
	r, store, _ := newTestReconciler(t, "U1")
	store.SetJoined("L1")

	raw := `{
		"game": {"game_id":"G1","lobby_id":"L1","state":"DRAWING","current_drawer_id":"U1"},
		"event": "round_started",
		"time_remaining_seconds": 60,
		"current_word": ""
	}`
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))

	game := store.Game()
	require.NotNil(t, game)
	require.True(t, game.WordPending, "no word is fabricated client side")
	require.Empty(t, game.CurrentWord)
}

func TestUnknownEnvelopeSignalled(t *testing.T) {
	r, _, events := newTestReconciler(t, "U1")

	require.NoError(t, r.Apply(envelope(t, "server_gossip", `{}`)))
	require.Equal(t, 1, countEvents(events, EventUnknownEnvelope))
}

func TestDrawingUpdateGatedByGameID(t *testing.T) {
	r, store, events := newTestReconciler(t, "U1")
	store.SetJoined("L1")
	store.commitGame(&GameSnapshot{GameID: "G1", LobbyID: "L1", State: StateDrawing})

	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeDrawingUpdate,
		`{"gameId":"G9","paths":"[1]"}`)))
	require.Empty(t, store.Game().DrawingPaths, "foreign game drawing ignored")

	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeDrawingUpdate,
		`{"gameId":"G1","paths":"[1]"}`)))
	require.Equal(t, "[1]", store.Game().DrawingPaths)

	// Strokes publish their own event type, never the snapshot event
	// the round timer re-arms from.
	var seen []EventType
	for {
		select {
		case ev := <-events:
			seen = append(seen, ev.Type)
		case <-time.After(100 * time.Millisecond):
			require.Equal(t, []EventType{EventDrawingChanged}, seen)
			return
		}
	}
}

func TestDrawingTrafficDoesNotRewindCountdown(t *testing.T) {
	store := NewStore("U9")
	bus := NewBus()
	clock := clockwork.NewFakeClock()
	timer := NewRoundTimer(clock, bus)
	bus.Subscribe(func(ev Event) {
		if ev.Type == EventGameSnapshot {
			timer.OnSnapshotApplied(ev.Game)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Run(ctx)

	r := NewReconciler(store, bus)
	store.SetJoined("L1")

	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, `{
		"game": {"game_id":"G1","lobby_id":"L1","state":"DRAWING","current_drawer_id":"P1"},
		"event": "round_started",
		"time_remaining_seconds": 60
	}`)))
	require.Eventually(t, func() bool { return timer.Running() },
		2*time.Second, 5*time.Millisecond)

	clock.BlockUntil(1)
	for i := 1; i <= 5; i++ {
		clock.Advance(time.Second)
		want := 60 - i
		require.Eventually(t, func() bool { return timer.Remaining() == want },
			2*time.Second, 5*time.Millisecond)
	}

	// Stroke traffic mid-round must not reseed the countdown from the
	// stale remaining time carried on the snapshot.
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeDrawingUpdate,
		`{"gameId":"G1","paths":"[1]"}`)))
	require.Eventually(t, func() bool { return store.Game().DrawingPaths == "[1]" },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, 55, timer.Remaining())
}

func TestResetClearsDuplicateSuppressionAcrossSessions(t *testing.T) {
	r, store, events := newTestReconciler(t, "U9")
	store.SetJoined("L1")

	raw := `{
		"game": {"game_id":"G1","lobby_id":"L1","state":"DRAWING","current_round":1,"total_rounds":3,"current_drawer_id":"U1"},
		"event": "round_started",
		"time_remaining_seconds": 60
	}`
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))
	require.NotNil(t, store.Game())

	// Disconnect path: session state and reconciliation memory go
	// together.
	store.Reset()
	r.Reset()
	store.SetJoined("L1")

	// The server re-sends the identical state for the new session; it
	// is authoritative, not a duplicate.
	require.NoError(t, r.Apply(envelope(t, protocol.MessageTypeGameState, raw)))
	require.NotNil(t, store.Game())
	require.Equal(t, "G1", store.Game().GameID)
	require.Equal(t, 2, countEvents(events, EventGameSnapshot))
}

func TestDecodeFailureForwardedUpward(t *testing.T) {
	r, _, _ := newTestReconciler(t, "U1")

	err := r.Apply(envelope(t, protocol.MessageTypeGameState, `"not an object"`))
	require.Error(t, err)
	var decodeErr *protocol.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}
