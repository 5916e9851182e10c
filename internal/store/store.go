// Package store picks the persistence backend named by the configuration.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jason-s-yu/memoria/internal/config"
	"github.com/jason-s-yu/memoria/internal/database"
	"github.com/jason-s-yu/memoria/internal/identity"
	"github.com/jason-s-yu/memoria/internal/leaderboard"
	"github.com/jason-s-yu/memoria/internal/store/sqlite"
)

// Backend bundles the player and ranking stores behind one lifetime.
type Backend struct {
	Name     string
	Players  identity.PlayerStore
	Rankings leaderboard.Store
	close    func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects the backend selected by cfg.Store.
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch name := strings.ToLower(cfg.Store); name {
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: name, Players: s, Rankings: s, close: s.Close}, nil
	case config.StorePostgres:
		if err := database.ConnectDB(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		s := database.NewStore(database.DB)
		return &Backend{Name: name, Players: s, Rankings: s, close: func() error {
			database.Close()
			return nil
		}}, nil
	case config.StoreMemory:
		return &Backend{Name: name, Players: identity.NewMemoryStore(), Rankings: leaderboard.NewMemoryStore()}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
