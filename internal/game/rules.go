// internal/game/rules.go
package game

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Rule validation errors. Start wraps one of these when the rules are unusable.
var (
	ErrEmptySymbolSet     = errors.New("symbol set is empty")
	ErrBlankSymbol        = errors.New("symbol set contains a blank symbol")
	ErrDuplicateSymbol    = errors.New("symbol set contains a duplicate symbol")
	ErrInvalidDuration    = errors.New("round duration must be at least one second")
	ErrNegativeSettle     = errors.New("settle delay must not be negative")
	ErrNegativeScoreDelta = errors.New("match reward and mismatch penalty must not be negative")
)

// DefaultSymbols is the reference card face set (eight pairs).
var DefaultSymbols = []string{
	"01.jpg", "02.jpg", "03.jpg", "04.jpg",
	"05.jpg", "06.jpg", "07.jpg", "08.jpg",
}

// Rules holds the per-round configuration. The zero value is invalid; use DefaultRules.
type Rules struct {
	// Symbols is the set of distinct card faces. Each one is dealt exactly twice.
	Symbols []string `yaml:"symbols" json:"symbols"`

	// RoundDuration is the countdown length. Only whole seconds are displayed.
	RoundDuration time.Duration `yaml:"round_duration" json:"roundDuration"`

	// SettleDelay is how long two revealed cards stay up before being resolved back.
	SettleDelay time.Duration `yaml:"settle_delay" json:"settleDelay"`

	MatchReward     int `yaml:"match_reward" json:"matchReward"`
	MismatchPenalty int `yaml:"mismatch_penalty" json:"mismatchPenalty"`
}

// DefaultRules returns the reference configuration: 8 symbols, 30s, 800ms settle, +10/-2.
func DefaultRules() Rules {
	symbols := make([]string, len(DefaultSymbols))
	copy(symbols, DefaultSymbols)
	return Rules{
		Symbols:         symbols,
		RoundDuration:   30 * time.Second,
		SettleDelay:     800 * time.Millisecond,
		MatchReward:     10,
		MismatchPenalty: 2,
	}
}

// Pairs returns N, the number of distinct symbols.
func (r Rules) Pairs() int {
	return len(r.Symbols)
}

// RoundSeconds returns the countdown length in whole seconds.
func (r Rules) RoundSeconds() int {
	return int(r.RoundDuration / time.Second)
}

// Validate reports the first problem found with the rules, wrapped with context.
func (r Rules) Validate() error {
	if len(r.Symbols) == 0 {
		return fmt.Errorf("invalid rules: %w", ErrEmptySymbolSet)
	}
	seen := make(map[string]struct{}, len(r.Symbols))
	for i, s := range r.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("invalid rules: symbol %d: %w", i, ErrBlankSymbol)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("invalid rules: symbol %q: %w", s, ErrDuplicateSymbol)
		}
		seen[s] = struct{}{}
	}
	if r.RoundDuration < time.Second {
		return fmt.Errorf("invalid rules: %s: %w", r.RoundDuration, ErrInvalidDuration)
	}
	if r.SettleDelay < 0 {
		return fmt.Errorf("invalid rules: %w", ErrNegativeSettle)
	}
	if r.MatchReward < 0 || r.MismatchPenalty < 0 {
		return fmt.Errorf("invalid rules: %w", ErrNegativeScoreDelta)
	}
	return nil
}
