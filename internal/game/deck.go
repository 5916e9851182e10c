// internal/game/deck.go
package game

import (
	"encoding/json"
	"math/rand"
)

// Card is a single dealt card. It never changes after the deal.
type Card struct {
	Symbol   string `json:"symbol"`
	Position int    `json:"position"`
}

// CardState is the mutable face of a card within a round.
type CardState int

const (
	FaceDown CardState = iota
	FaceUp
	Matched
)

func (s CardState) String() string {
	switch s {
	case FaceDown:
		return "face_down"
	case FaceUp:
		return "face_up"
	case Matched:
		return "matched"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name.
func (s CardState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// buildDeck duplicates every symbol and applies a uniform Fisher-Yates permutation.
// Positions are assigned after shuffling so Card.Position always equals its index.
func buildDeck(symbols []string, r *rand.Rand) []Card {
	faces := make([]string, 0, 2*len(symbols))
	faces = append(faces, symbols...)
	faces = append(faces, symbols...)

	r.Shuffle(len(faces), func(i, j int) {
		faces[i], faces[j] = faces[j], faces[i]
	})

	deck := make([]Card, len(faces))
	for i, s := range faces {
		deck[i] = Card{Symbol: s, Position: i}
	}
	return deck
}
