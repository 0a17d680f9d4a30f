package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// MinRearmInterval is the minimum time between countdown re-arms.
// Rapid snapshot bursts within this window keep the running countdown
// instead of restarting it, so observed time never jumps.
const MinRearmInterval = 500 * time.Millisecond

// RoundTimer drives the round countdown from reconciled snapshots. It
// only observes the game state machine: it reports elapsed time and
// leaves any round advancement to upstream logic. The clock is injected
// so tests can run on a fake one.
type RoundTimer struct {
	clock clockwork.Clock
	bus   *Bus

	mu        sync.Mutex
	running   bool
	remaining int
	armedAt   time.Time
	elapsed   bool
	stopCh    chan struct{}
}

// NewRoundTimer creates a round timer publishing on the given bus
func NewRoundTimer(clock clockwork.Clock, bus *Bus) *RoundTimer {
	return &RoundTimer{clock: clock, bus: bus}
}

// OnSnapshotApplied reacts to a freshly committed game snapshot:
// active states (re)arm the countdown from the snapshot's remaining
// time, terminal states stop it and emit RoundElapsed exactly once.
func (t *RoundTimer) OnSnapshotApplied(game *GameSnapshot) {
	if game == nil {
		return
	}

	t.mu.Lock()

	if game.State.Active() {
		if t.running && t.clock.Since(t.armedAt) < MinRearmInterval {
			// Thrash guard: duplicate snapshots inside the re-arm
			// window keep the countdown that is already running.
			t.mu.Unlock()
			log.Debug().
				Str("game_id", game.GameID).
				Int("time_remaining_sec", game.TimeRemainingSec).
				Msg("skipping timer re-arm inside minimum interval")
			return
		}
		if game.TimeRemainingSec <= 0 {
			t.mu.Unlock()
			return
		}

		t.stopRunningLocked()
		t.running = true
		t.remaining = game.TimeRemainingSec
		t.armedAt = t.clock.Now()
		t.elapsed = false
		t.stopCh = make(chan struct{})
		go t.run(t.stopCh)
		t.mu.Unlock()

		log.Debug().
			Str("game_id", game.GameID).
			Int("seconds", game.TimeRemainingSec).
			Msg("round countdown armed")
		return
	}

	wasRunning := t.running
	t.stopRunningLocked()

	if game.State.Terminal() && wasRunning && !t.elapsed {
		t.elapsed = true
		t.mu.Unlock()
		t.bus.Publish(Event{Type: EventRoundElapsed, Game: game.Clone()})
		return
	}
	t.mu.Unlock()
}

// Stop cancels any running countdown without emitting a signal. Called
// on disconnect and session teardown.
func (t *RoundTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopRunningLocked()
}

// Remaining returns the seconds left on the current countdown
func (t *RoundTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Running reports whether a countdown is in flight
func (t *RoundTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *RoundTimer) stopRunningLocked() {
	if t.running {
		close(t.stopCh)
		t.running = false
	}
}

// run ticks the countdown down at one-second granularity and emits
// RoundElapsed exactly once when it reaches zero.
func (t *RoundTimer) run(stopCh chan struct{}) {
	ticker := t.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			t.mu.Lock()
			// A tick can race a re-arm; only the current countdown's
			// goroutine may mutate the remaining time.
			if !t.running || t.stopCh != stopCh {
				t.mu.Unlock()
				return
			}
			t.remaining--
			if t.remaining > 0 {
				t.mu.Unlock()
				continue
			}
			t.running = false
			emit := !t.elapsed
			t.elapsed = true
			t.mu.Unlock()

			if emit {
				log.Debug().Msg("round countdown elapsed")
				t.bus.Publish(Event{Type: EventRoundElapsed})
			}
			return
		}
	}
}
