package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/memoria/internal/identity"
	"github.com/jason-s-yu/memoria/internal/models"
)

// SavePlayer upserts the identity record.
func (s *Store) SavePlayer(ctx context.Context, p *models.Player) error {
	q := `
		INSERT INTO players (id, name, phone, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, phone = $3, saved_at = $4
	`
	err := beginTxFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, p.ID, p.Name, p.Phone, p.SavedAt)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert player: %w", err)
	}
	return nil
}

// GetPlayer loads one identity record by id.
func (s *Store) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var p models.Player
	q := `SELECT id, name, phone, saved_at FROM players WHERE id = $1`
	err := s.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.Name, &p.Phone, &p.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, identity.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	p.SavedAt = p.SavedAt.UTC()
	return &p, nil
}
