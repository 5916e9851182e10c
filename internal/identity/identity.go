// Package identity validates and records the player before a round can start.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memoria/internal/models"
)

const (
	MinNameLength  = 3
	MinPhoneDigits = 10
	MaxPhoneDigits = 11
)

var (
	ErrInvalidName    = fmt.Errorf("name must have at least %d characters", MinNameLength)
	ErrInvalidPhone   = fmt.Errorf("phone must have %d or %d digits", MinPhoneDigits, MaxPhoneDigits)
	ErrPlayerNotFound = errors.New("player not found")
)

// PlayerStore persists identity records.
type PlayerStore interface {
	SavePlayer(ctx context.Context, p *models.Player) error
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
}

// ValidateName trims the name and checks its length in characters. Control
// characters are rejected.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinNameLength || !isPrintable(name) {
		return "", ErrInvalidName
	}
	return name, nil
}

// NormalizePhone drops every non-digit character.
func NormalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
}

// ValidatePhone normalizes the phone and checks the digit count.
func ValidatePhone(raw string) (string, error) {
	digits := NormalizePhone(strings.TrimSpace(raw))
	if len(digits) < MinPhoneDigits || len(digits) > MaxPhoneDigits {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// Gate turns raw form input into a persisted player record.
type Gate struct {
	Store PlayerStore
	Now   func() time.Time
}

func NewGate(store PlayerStore) *Gate {
	return &Gate{Store: store, Now: time.Now}
}

// Register validates the form fields and saves a new player.
// Validation errors are returned unwrapped so callers can show them directly.
func (g *Gate) Register(ctx context.Context, name, phone string) (*models.Player, error) {
	cleanName, nameErr := ValidateName(name)
	cleanPhone, phoneErr := ValidatePhone(phone)
	if err := errors.Join(nameErr, phoneErr); err != nil {
		return nil, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate player id: %w", err)
	}
	p := &models.Player{
		ID:      id,
		Name:    cleanName,
		Phone:   cleanPhone,
		SavedAt: g.Now().UTC(),
	}
	if err := g.Store.SavePlayer(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save player: %w", err)
	}
	return p, nil
}

// Lookup fetches a previously registered player.
func (g *Gate) Lookup(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	return g.Store.GetPlayer(ctx, id)
}

// MemoryStore keeps players in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[uuid.UUID]models.Player
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[uuid.UUID]models.Player)}
}

func (s *MemoryStore) SavePlayer(_ context.Context, p *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPlayer(_ context.Context, id uuid.UUID) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return &p, nil
}

// isPrintable reports whether every rune in s is printable.
func isPrintable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
