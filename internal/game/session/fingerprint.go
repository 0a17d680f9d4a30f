package session

import (
	"github.com/mcdev12/sketchsync/internal/game/protocol"
)

// Fingerprint is a content-derived key for a game_state envelope. The
// transport can redeliver the same logical update through more than one
// path; comparing fingerprints lets the reconciler apply it once.
// Fingerprints live only for the duration of one session.
type Fingerprint struct {
	GameID       string
	DrawerID     string
	Round        int
	RemainingSec int
	Event        string
}

// FingerprintOf derives the fingerprint for a decoded game_state
// payload.
func FingerprintOf(p *protocol.GameStatePayload) Fingerprint {
	round := p.Game.CurrentRound
	if round == 0 {
		round = p.RoundNumber
	}
	return Fingerprint{
		GameID:       p.Game.GameID,
		DrawerID:     p.Game.CurrentDrawerID,
		Round:        round,
		RemainingSec: p.TimeRemainingSec,
		Event:        p.Event,
	}
}
