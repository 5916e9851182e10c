package game

import (
	"sync"

	"github.com/google/uuid"
)

// RoundStore keeps one engine per player so a reconnecting client resumes its round.
type RoundStore struct {
	mu      sync.Mutex
	engines map[uuid.UUID]*Engine
}

func NewRoundStore() *RoundStore {
	return &RoundStore{
		engines: make(map[uuid.UUID]*Engine),
	}
}

// GetOrCreate returns the player's engine, building it with newFn on first use.
func (s *RoundStore) GetOrCreate(playerID uuid.UUID, newFn func() *Engine) (*Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engines[playerID]; ok {
		return e, false
	}
	e := newFn()
	s.engines[playerID] = e
	return e, true
}

func (s *RoundStore) Get(playerID uuid.UUID) (*Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[playerID]
	return e, ok
}

// Delete tears down the player's engine and forgets it.
func (s *RoundStore) Delete(playerID uuid.UUID) {
	s.mu.Lock()
	e, ok := s.engines[playerID]
	delete(s.engines, playerID)
	s.mu.Unlock()
	if ok {
		e.Reset()
	}
}

func (s *RoundStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.engines)
}
