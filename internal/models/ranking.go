package models

import (
	"time"

	"github.com/google/uuid"
)

// RankingEntry is one finished round on the leaderboard. Entries are never
// deduplicated per player.
type RankingEntry struct {
	RoundID        uuid.UUID `json:"round_id"`
	PlayerID       uuid.UUID `json:"player_id,omitempty"`
	Name           string    `json:"name"`
	Score          int       `json:"score"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Victory        bool      `json:"victory"`
	Timestamp      time.Time `json:"timestamp"`
}
