// internal/handlers/server.go
package handlers

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memoria/internal/game"
	"github.com/jason-s-yu/memoria/internal/identity"
	"github.com/jason-s-yu/memoria/internal/leaderboard"
	"github.com/jason-s-yu/memoria/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Server holds what the HTTP and websocket handlers share.
type Server struct {
	Gate     *identity.Gate
	Rankings leaderboard.Store
	Reporter *leaderboard.Reporter
	Rounds   *game.RoundStore
	Rules    game.Rules
	Logger   logrus.FieldLogger

	// AllowedOrigins feeds websocket origin checks.
	AllowedOrigins []string

	// NewEngine builds the engine for a player's first connection. Defaults to game.NewEngine.
	NewEngine func(rules game.Rules) *game.Engine

	connMu sync.Mutex
	conns  map[uuid.UUID]*roundConn
}

func NewServer(gate *identity.Gate, rankings leaderboard.Store, rules game.Rules, logger logrus.FieldLogger) *Server {
	return &Server{
		Gate:           gate,
		Rankings:       rankings,
		Reporter:       leaderboard.NewReporter(rankings, logger),
		Rounds:         game.NewRoundStore(),
		Rules:          rules,
		Logger:         logger,
		AllowedOrigins: []string{"*"},
		conns:          make(map[uuid.UUID]*roundConn),
	}
}

// Routes registers every endpoint behind the request logger.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /player/register", s.RegisterHandler)
	mux.HandleFunc("GET /player/me", s.MeHandler)
	mux.HandleFunc("GET /leaderboard", s.TopHandler)
	mux.HandleFunc("GET /leaderboard/history", s.HistoryHandler)
	mux.HandleFunc("GET /round/ws", s.RoundWSHandler)
	return middleware.LogMiddleware(s.Logger)(mux)
}

// Shutdown ends every round still in memory and waits for pending leaderboard writes.
func (s *Server) Shutdown() {
	s.connMu.Lock()
	ids := make([]uuid.UUID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.connMu.Unlock()
	for _, id := range ids {
		s.Rounds.Delete(id)
	}
	s.Reporter.Wait()
}

func (s *Server) engineFor(playerID uuid.UUID) *game.Engine {
	e, created := s.Rounds.GetOrCreate(playerID, func() *game.Engine {
		build := s.NewEngine
		if build == nil {
			build = game.NewEngine
		}
		e := build(s.Rules)
		e.Logger = s.Logger.WithField("player", playerID)
		e.OnRoundEnd = s.Reporter.OnRoundEnd(playerID)
		return e
	})
	if created {
		s.Logger.WithField("player", playerID).Debug("Created round engine")
	}
	return e
}
