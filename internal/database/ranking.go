package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/memoria/internal/models"
)

// AppendRanking records one finished round.
func (s *Store) AppendRanking(ctx context.Context, entry models.RankingEntry) error {
	var playerID *uuid.UUID
	if entry.PlayerID != uuid.Nil {
		playerID = &entry.PlayerID
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	q := `
		INSERT INTO rankings (round_id, player_id, name, score, elapsed_seconds, victory, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	err := beginTxFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, entry.RoundID, playerID, entry.Name, entry.Score, entry.ElapsedSeconds, entry.Victory, ts)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to insert ranking: %w", err)
	}
	return nil
}

// TopRankings returns the best limit entries; limit <= 0 returns everything.
func (s *Store) TopRankings(ctx context.Context, limit int) ([]models.RankingEntry, error) {
	q := `
		SELECT round_id, player_id, name, score, elapsed_seconds, victory, created_at
		FROM rankings
		ORDER BY score DESC, elapsed_seconds ASC, created_at ASC
	`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rankings: %w", err)
	}
	defer rows.Close()

	var out []models.RankingEntry
	for rows.Next() {
		var (
			e        models.RankingEntry
			playerID *uuid.UUID
		)
		if err := rows.Scan(&e.RoundID, &playerID, &e.Name, &e.Score, &e.ElapsedSeconds, &e.Victory, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		if playerID != nil {
			e.PlayerID = *playerID
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rankings: %w", err)
	}
	return out, nil
}

// AllRankings returns the full history in rank order.
func (s *Store) AllRankings(ctx context.Context) ([]models.RankingEntry, error) {
	return s.TopRankings(ctx, 0)
}
