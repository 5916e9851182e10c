// internal/handlers/round_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/memoria/internal/game"
	"github.com/jason-s-yu/memoria/internal/identity"
	"github.com/jason-s-yu/memoria/internal/middleware"
	"github.com/sirupsen/logrus"
)

const (
	roundSubprotocol = "round"
	outBufferSize    = 64
)

// RoundMessage is an incoming client message.
type RoundMessage struct {
	Type     string `json:"type"`
	Position *int   `json:"position,omitempty"`
}

// roundConn is one player's live connection. Engine events are queued on out
// and written in order by writePump.
type roundConn struct {
	playerID uuid.UUID
	out      chan []byte
	logger   logrus.FieldLogger
}

// push queues data without blocking. Called with the engine lock held.
func (rc *roundConn) push(data []byte) {
	select {
	case rc.out <- data:
	default:
		rc.logger.Warn("Outbound queue full, dropping message")
	}
}

func (rc *roundConn) write(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		rc.logger.WithError(err).Warn("Failed to marshal outgoing message")
		return
	}
	rc.push(data)
}

func (rc *roundConn) writeError(msg string) {
	rc.write(map[string]string{"type": "error", "message": msg})
}

// RoundWSHandler upgrades to a websocket bound to the caller's round engine.
// A reconnecting player resumes the round in progress.
func (s *Server) RoundWSHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{roundSubprotocol},
		OriginPatterns: s.AllowedOrigins,
	})
	if err != nil {
		s.Logger.Warnf("WebSocket accept error for player %s: %v", claims.PlayerID, err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

	if c.Subprotocol() != roundSubprotocol {
		c.Close(BadSubprotocolError, "Client must use the 'round' subprotocol.")
		return
	}

	player, err := s.Gate.Lookup(r.Context(), claims.PlayerID)
	if err != nil {
		if errors.Is(err, identity.ErrPlayerNotFound) {
			c.Close(UnknownPlayerError, "player not registered")
		} else {
			s.Logger.WithError(err).Error("Failed to load player for round")
			c.Close(websocket.StatusInternalError, "could not load player")
		}
		return
	}

	logger := s.Logger.WithField("player", player.ID)
	middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	rc := &roundConn{
		playerID: player.ID,
		out:      make(chan []byte, outBufferSize),
		logger:   logger,
	}
	e := s.engineFor(player.ID)
	s.bind(rc)
	e.Attach(func(ev game.GameEvent) { rc.push(game.EncodeEvent(ev)) })
	rc.push(game.EncodeEvent(e.SyncEvent()))

	go writePump(ctx, c, rc)

	err = readPump(ctx, c, e, rc, player.Name)
	middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)

	if s.unbind(rc) {
		e.Attach(nil)
		if e.Phase() != game.PhaseRunning {
			s.Rounds.Delete(player.ID)
		}
	}
	c.Close(websocket.StatusNormalClosure, "")
}

// bind makes rc the player's current connection.
func (s *Server) bind(rc *roundConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conns == nil {
		s.conns = make(map[uuid.UUID]*roundConn)
	}
	s.conns[rc.playerID] = rc
}

// unbind forgets rc and reports whether it was still the current connection.
func (s *Server) unbind(rc *roundConn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conns[rc.playerID] != rc {
		return false
	}
	delete(s.conns, rc.playerID)
	return true
}

// readPump routes client messages to the engine until the connection closes.
func readPump(ctx context.Context, c *websocket.Conn, e *game.Engine, rc *roundConn, playerName string) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg RoundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			rc.writeError("Invalid JSON format.")
			continue
		}

		switch msg.Type {
		case "start":
			if _, err := e.Start(playerName); err != nil {
				rc.writeError(err.Error())
			}
		case "flip":
			if msg.Position == nil {
				rc.writeError("flip requires a position")
				continue
			}
			// Rejected flips are ignored without feedback.
			e.Flip(*msg.Position)
		case "reset":
			e.Reset()
			rc.push(game.EncodeEvent(e.SyncEvent()))
		case "sync":
			rc.push(game.EncodeEvent(e.SyncEvent()))
		case "ping":
			rc.write(map[string]string{"type": "pong"})
		default:
			rc.writeError(fmt.Sprintf("Unknown action type: %s", msg.Type))
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, rc *roundConn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-rc.out:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				rc.logger.WithError(err).Warn("Failed to write to websocket")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				rc.logger.WithError(err).Warn("Failed to send ping, assuming disconnect")
				return
			}
		}
	}
}
