package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/memoria/internal/cache"
)

// Round statuses in the rounds table.
const (
	RoundInProgress = "in_progress"
	RoundCompleted  = "completed"
	RoundAbandoned  = "abandoned"
)

// InsertRoundActions persists a batch of queued actions in a single transaction,
// creating round rows as needed and closing rounds whose end action arrives.
func (s *Store) InsertRoundActions(ctx context.Context, batch []cache.RoundActionRecord) error {
	if len(batch) == 0 {
		return nil
	}
	return beginTxFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		for _, rec := range batch {
			if err := insertRoundActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRoundActionTx: %w", err)
			}
		}
		return nil
	})
}

func insertRoundActionTx(ctx context.Context, tx pgx.Tx, rec cache.RoundActionRecord) error {
	upsertRoundQ := `
		INSERT INTO rounds (id, player_name, status, start_time)
		VALUES ($1, $2, 'in_progress', $3)
		ON CONFLICT (id) DO NOTHING
	`
	at := time.UnixMilli(rec.Timestamp).UTC()
	if _, err := tx.Exec(ctx, upsertRoundQ, rec.RoundID, rec.PlayerName, at); err != nil {
		return err
	}

	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	actionQ := `
		INSERT INTO round_actions (round_id, action_index, action_type, action_payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (round_id, action_index) DO NOTHING
	`
	if _, err := tx.Exec(ctx, actionQ, rec.RoundID, rec.ActionIndex, rec.ActionType, payload, at); err != nil {
		return err
	}

	if rec.ActionType == "round_end" || rec.ActionType == "round_reset" {
		status := RoundCompleted
		if rec.ActionType == "round_reset" {
			status = RoundAbandoned
		}
		finalizeQ := `
			UPDATE rounds
			SET status = $2, end_time = $3
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.RoundID, status, at); err != nil {
			return err
		}
	}
	return nil
}

// MarkRoundAbandoned closes a round that stopped producing actions.
func (s *Store) MarkRoundAbandoned(ctx context.Context, roundID uuid.UUID) error {
	q := `
		UPDATE rounds
		SET status = 'abandoned', end_time = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`
	err := beginTxFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, roundID)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to mark round %v abandoned: %w", roundID, err)
	}
	return nil
}
