// Package sqlite provides the local, file-backed store for players and rankings.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memoria/internal/identity"
	"github.com/jason-s-yu/memoria/internal/models"
	"github.com/jason-s-yu/memoria/internal/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const migrationTable = "schema_migrations"

// Store persists players and the ranking history in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the SQLite database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SavePlayer inserts or replaces one identity record.
func (s *Store) SavePlayer(ctx context.Context, p *models.Player) error {
	if p == nil || p.ID == uuid.Nil {
		return fmt.Errorf("player id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO players (id, name, phone, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, phone = excluded.phone, saved_at = excluded.saved_at`,
		p.ID.String(), p.Name, p.Phone, toMillis(p.SavedAt),
	)
	if err != nil {
		return fmt.Errorf("save player: %w", err)
	}
	return nil
}

// GetPlayer loads one identity record.
func (s *Store) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var (
		rawID   string
		p       models.Player
		savedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, phone, saved_at FROM players WHERE id = ?`, id.String(),
	).Scan(&rawID, &p.Name, &p.Phone, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	if p.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("get player: bad id %q: %w", rawID, err)
	}
	p.SavedAt = fromMillis(savedAt)
	return &p, nil
}

// AppendRanking adds one finished round to the history.
func (s *Store) AppendRanking(ctx context.Context, entry models.RankingEntry) error {
	playerID := ""
	if entry.PlayerID != uuid.Nil {
		playerID = entry.PlayerID.String()
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO rankings (round_id, player_id, name, score, elapsed_seconds, victory, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RoundID.String(), playerID, entry.Name, entry.Score, entry.ElapsedSeconds, entry.Victory, toMillis(ts),
	)
	if err != nil {
		return fmt.Errorf("append ranking: %w", err)
	}
	return nil
}

// TopRankings returns the best limit entries; limit <= 0 returns the whole history.
func (s *Store) TopRankings(ctx context.Context, limit int) ([]models.RankingEntry, error) {
	q := `SELECT round_id, player_id, name, score, elapsed_seconds, victory, created_at
	      FROM rankings
	      ORDER BY score DESC, elapsed_seconds ASC, created_at ASC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.sqlDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}
	defer rows.Close()

	var out []models.RankingEntry
	for rows.Next() {
		var (
			e                 models.RankingEntry
			roundID, playerID string
			createdAt         int64
		)
		if err := rows.Scan(&roundID, &playerID, &e.Name, &e.Score, &e.ElapsedSeconds, &e.Victory, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		if e.RoundID, err = uuid.Parse(roundID); err != nil {
			return nil, fmt.Errorf("scan ranking: bad round id %q: %w", roundID, err)
		}
		if playerID != "" {
			if e.PlayerID, err = uuid.Parse(playerID); err != nil {
				return nil, fmt.Errorf("scan ranking: bad player id %q: %w", playerID, err)
			}
		}
		e.Timestamp = fromMillis(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rankings: %w", err)
	}
	return out, nil
}

// AllRankings returns the full history in rank order.
func (s *Store) AllRankings(ctx context.Context) ([]models.RankingEntry, error) {
	return s.TopRankings(ctx, 0)
}

// applyMigrations executes each embedded *.sql file at most once, in name order.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := sqlDB.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upMigration(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, file, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upMigration returns the SQL between the Up and Down markers.
func upMigration(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	if i := strings.Index(content, up); i != -1 {
		content = content[i+len(up):]
	}
	if i := strings.Index(content, down); i != -1 {
		content = content[:i]
	}
	return content
}
