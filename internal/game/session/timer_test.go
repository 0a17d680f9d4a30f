package session

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestTimer(t *testing.T) (*RoundTimer, *clockwork.FakeClock, <-chan Event) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	bus := NewBus()
	events := make(chan Event, 64)
	bus.Subscribe(func(ev Event) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Run(ctx)

	return NewRoundTimer(clock, bus), clock, events
}

func drawingSnapshot(remaining int) *GameSnapshot {
	return &GameSnapshot{GameID: "G1", State: StateDrawing, TimeRemainingSec: remaining}
}

func waitForEvent(t *testing.T, events <-chan Event, eventType EventType) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == eventType {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func TestCountdownTicksDownAndElapsesOnce(t *testing.T) {
	timer, clock, events := newTestTimer(t)

	timer.OnSnapshotApplied(drawingSnapshot(2))
	require.True(t, timer.Running())
	require.Equal(t, 2, timer.Remaining())

	clock.BlockUntil(1) // countdown goroutine has its ticker registered
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return timer.Remaining() == 1 },
		2*time.Second, 5*time.Millisecond)

	clock.Advance(time.Second)
	waitForEvent(t, events, EventRoundElapsed)
	require.False(t, timer.Running())

	// No second signal for the same countdown
	select {
	case ev := <-events:
		require.NotEqual(t, EventRoundElapsed, ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRearmInsideMinimumIntervalKeepsCountdown(t *testing.T) {
	timer, clock, _ := newTestTimer(t)

	timer.OnSnapshotApplied(drawingSnapshot(60))
	require.Equal(t, 60, timer.Remaining())

	clock.BlockUntil(1)
	clock.Advance(300 * time.Millisecond)

	// A duplicate authoritative snapshot inside the re-arm window must
	// not restart the countdown: the original ticker keeps its phase,
	// so the first decrement still lands at the one second mark.
	timer.OnSnapshotApplied(drawingSnapshot(60))
	require.Equal(t, 60, timer.Remaining())

	clock.Advance(700 * time.Millisecond)
	require.Eventually(t, func() bool { return timer.Remaining() == 59 },
		2*time.Second, 5*time.Millisecond)
}

func TestRearmAfterIntervalReplacesCountdown(t *testing.T) {
	timer, clock, _ := newTestTimer(t)

	timer.OnSnapshotApplied(drawingSnapshot(60))
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return timer.Remaining() == 59 },
		2*time.Second, 5*time.Millisecond)

	timer.OnSnapshotApplied(drawingSnapshot(30))
	require.Equal(t, 30, timer.Remaining(), "a new authoritative snapshot replaces the countdown")
	require.True(t, timer.Running())
}

func TestTerminalStateStopsAndEmitsOnce(t *testing.T) {
	timer, _, events := newTestTimer(t)

	timer.OnSnapshotApplied(drawingSnapshot(60))
	require.True(t, timer.Running())

	finished := &GameSnapshot{GameID: "G1", State: StateFinished}
	timer.OnSnapshotApplied(finished)
	require.False(t, timer.Running())
	waitForEvent(t, events, EventRoundElapsed)

	// Repeated terminal snapshots emit nothing further
	timer.OnSnapshotApplied(finished)
	select {
	case ev := <-events:
		require.NotEqual(t, EventRoundElapsed, ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTerminalStateWithoutCountdownIsSilent(t *testing.T) {
	timer, _, events := newTestTimer(t)

	timer.OnSnapshotApplied(&GameSnapshot{GameID: "G1", State: StateWaiting})
	select {
	case ev := <-events:
		require.NotEqual(t, EventRoundElapsed, ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopCancelsCountdownSilently(t *testing.T) {
	timer, _, events := newTestTimer(t)

	timer.OnSnapshotApplied(drawingSnapshot(60))
	timer.Stop()
	require.False(t, timer.Running())

	select {
	case ev := <-events:
		require.NotEqual(t, EventRoundElapsed, ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}
