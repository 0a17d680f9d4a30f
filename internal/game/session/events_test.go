package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusCoalescesSnapshotEventsOnOverflow(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1024)
	bus.Subscribe(func(ev Event) { received <- ev })

	// Fill the queue before delivery starts, then keep publishing
	// newer snapshots past capacity.
	const published = 300
	for i := 1; i <= published; i++ {
		bus.Publish(Event{
			Type: EventGameSnapshot,
			Game: &GameSnapshot{GameID: "G1", CurrentRound: i},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Run(ctx)

	// The overflowed snapshots coalesce: subscribers still end on the
	// newest one instead of silently losing it.
	var last *GameSnapshot
	count := 0
	for {
		select {
		case ev := <-received:
			count++
			last = ev.Game
		case <-time.After(200 * time.Millisecond):
			require.NotNil(t, last)
			require.Equal(t, published, last.CurrentRound, "latest snapshot survives the overflow")
			require.Less(t, count, published, "intermediate overflowed snapshots were coalesced away")
			return
		}
	}
}

func TestBusDropsNonSnapshotEventsOnOverflow(t *testing.T) {
	bus := NewBus()

	// Saturate the queue, then overflow with a non-snapshot event;
	// nothing pends for later delivery.
	for i := 0; i < cap(bus.eventCh); i++ {
		bus.Publish(Event{Type: EventConnected})
	}
	bus.Publish(Event{Type: EventRoundElapsed})

	_, ok := bus.takePending()
	require.False(t, ok)
}
