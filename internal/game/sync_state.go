// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"
)

// ObfCard is a card as the player is allowed to see it: the symbol is only
// present while the card is face up or matched.
type ObfCard struct {
	Position int       `json:"position"`
	State    CardState `json:"state"`
	Symbol   string    `json:"symbol,omitempty"`
}

// ObfRoundState is sent on (re)connect so a client can redraw the board.
type ObfRoundState struct {
	RoundID      uuid.UUID `json:"roundId"`
	Phase        string    `json:"phase"`
	PlayerName   string    `json:"playerName"`
	Score        int       `json:"score"`
	Remaining    int       `json:"remaining"`
	MatchedPairs int       `json:"matchedPairs"`
	Pairs        int       `json:"pairs"`
	Locked       bool      `json:"locked"` // two cards awaiting settle
	Cards        []ObfCard `json:"cards"`
	Outcome      *Outcome  `json:"outcome,omitempty"`
}

// GetObfuscatedRoundState generates a snapshot of the round with hidden symbols stripped.
func (e *Engine) GetObfuscatedRoundState() ObfRoundState {
	e.mu.Lock()
	defer e.mu.Unlock()

	obf := ObfRoundState{
		Phase: e.phase.String(),
		Pairs: e.Rules.Pairs(),
		Cards: []ObfCard{},
	}
	if e.state == nil {
		return obf
	}
	st := e.state
	obf.RoundID = st.ID
	obf.PlayerName = st.PlayerName
	obf.Score = st.Score
	obf.MatchedPairs = st.MatchedPairs
	obf.Locked = len(st.Revealed) >= 2
	if e.phase == PhaseRunning {
		obf.Remaining = e.Rules.RoundSeconds() - e.elapsedSeconds()
		if obf.Remaining < 0 {
			obf.Remaining = 0
		}
	}
	if e.outcome != nil {
		out := *e.outcome
		obf.Outcome = &out
	}

	obf.Cards = make([]ObfCard, len(st.Deck))
	for i, c := range st.Deck {
		oc := ObfCard{Position: i, State: st.States[i]}
		if st.States[i] != FaceDown {
			oc.Symbol = c.Symbol
		}
		obf.Cards[i] = oc
	}
	return obf
}

// SyncEvent wraps the obfuscated state in a round_sync event.
func (e *Engine) SyncEvent() GameEvent {
	state := e.GetObfuscatedRoundState()
	return GameEvent{
		Type:    EventRoundSync,
		RoundID: state.RoundID,
		State:   &state,
	}
}
