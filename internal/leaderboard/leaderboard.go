// Package leaderboard ranks finished rounds and hands outcomes to storage.
package leaderboard

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memoria/internal/game"
	"github.com/jason-s-yu/memoria/internal/models"
)

// DefaultTopN is how many entries the podium shows.
const DefaultTopN = 3

// Store appends ranking entries and reads them back in rank order.
type Store interface {
	AppendRanking(ctx context.Context, entry models.RankingEntry) error
	TopRankings(ctx context.Context, limit int) ([]models.RankingEntry, error)
	AllRankings(ctx context.Context) ([]models.RankingEntry, error)
}

// Less orders by score descending, then elapsed seconds ascending. Older entries
// win remaining ties so the order is stable across reloads.
func Less(a, b models.RankingEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.ElapsedSeconds != b.ElapsedSeconds {
		return a.ElapsedSeconds < b.ElapsedSeconds
	}
	return a.Timestamp.Before(b.Timestamp)
}

// Sort orders entries in place by rank.
func Sort(entries []models.RankingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// EntryFromOutcome builds the leaderboard record for a finished round.
func EntryFromOutcome(out game.Outcome, playerID uuid.UUID) models.RankingEntry {
	return models.RankingEntry{
		RoundID:        out.RoundID,
		PlayerID:       playerID,
		Name:           out.PlayerName,
		Score:          out.Score,
		ElapsedSeconds: out.ElapsedSeconds,
		Victory:        out.Victory,
		Timestamp:      out.EndedAt.UTC(),
	}
}

// MemoryStore keeps the full ranking history in process memory, always sorted.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []models.RankingEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendRanking(_ context.Context, entry models.RankingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	Sort(s.entries)
	return nil
}

func (s *MemoryStore) TopRankings(_ context.Context, limit int) ([]models.RankingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]models.RankingEntry, limit)
	copy(out, s.entries[:limit])
	return out, nil
}

func (s *MemoryStore) AllRankings(ctx context.Context) ([]models.RankingEntry, error) {
	return s.TopRankings(ctx, 0)
}
