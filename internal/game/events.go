// internal/game/events.go
package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GameEventType is an enum-like type for round notifications.
type GameEventType string

const (
	EventBoardReady   GameEventType = "board_ready"   // New board dealt, symbols hidden
	EventCardRevealed GameEventType = "card_revealed" // Card turned face up, symbol included
	EventCardHidden   GameEventType = "card_hidden"   // Mismatched card turned back down
	EventCardMatched  GameEventType = "card_matched"  // Card is part of a confirmed pair
	EventScoreChanged GameEventType = "score_changed"
	EventTimerChanged GameEventType = "timer_changed"
	EventRoundEnded   GameEventType = "round_ended"
	EventRoundSync    GameEventType = "round_sync" // Full obfuscated state on (re)connect
)

// EventCard identifies a card within an event. Symbol is only set once the card is visible.
type EventCard struct {
	Position int    `json:"position"`
	Symbol   string `json:"symbol,omitempty"`
}

// BoardLayout describes a freshly dealt board without revealing any symbol.
type BoardLayout struct {
	Size  int         `json:"size"`
	Pairs int         `json:"pairs"`
	Cards []EventCard `json:"cards"`
}

// GameEvent is broadcast to the render surface for every observable change.
type GameEvent struct {
	Type      GameEventType  `json:"type"`
	RoundID   uuid.UUID      `json:"roundId"`
	Board     *BoardLayout   `json:"board,omitempty"`
	Card      *EventCard     `json:"card,omitempty"`
	Score     *int           `json:"score,omitempty"`
	Remaining *int           `json:"remaining,omitempty"`
	Outcome   *Outcome       `json:"outcome,omitempty"`
	State     *ObfRoundState `json:"state,omitempty"` // Only for round_sync

	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Outcome is the terminal record of a round, produced exactly once.
type Outcome struct {
	RoundID        uuid.UUID `json:"roundId"`
	PlayerName     string    `json:"playerName"`
	Victory        bool      `json:"victory"`
	Score          int       `json:"score"`
	ElapsedSeconds int       `json:"elapsedSeconds"`
	MatchedPairs   int       `json:"matchedPairs"`
	EndedAt        time.Time `json:"endedAt"`
}

// Message returns the end-of-round text shown to the player.
func (o Outcome) Message() string {
	if o.Victory {
		return fmt.Sprintf("Congratulations! You won with %d points in %ds!", o.Score, o.ElapsedSeconds)
	}
	return fmt.Sprintf("Time's up! You scored %d points.", o.Score)
}

// OnRoundEndFunc receives the outcome of a finished round, e.g. to record it on the leaderboard.
type OnRoundEndFunc func(outcome Outcome)

func intPtr(v int) *int {
	return &v
}
