package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jason-s-yu/memoria/internal/auth"
	"github.com/jason-s-yu/memoria/internal/identity"
	"github.com/jason-s-yu/memoria/internal/models"
)

type registerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type registerResponse struct {
	Player *models.Player `json:"player"`
	Token  string         `json:"token"`
}

// RegisterHandler runs the identity gate. On success the session token is
// returned in the body and in the auth_token cookie.
//
// Request payload:
//
//	{"name": "Ana", "phone": "(11) 91234-5678"}
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	p, err := s.Gate.Register(r.Context(), req.Name, req.Phone)
	if err != nil {
		fields := map[string]string{}
		if errors.Is(err, identity.ErrInvalidName) {
			fields["name"] = identity.ErrInvalidName.Error()
		}
		if errors.Is(err, identity.ErrInvalidPhone) {
			fields["phone"] = identity.ErrInvalidPhone.Error()
		}
		if len(fields) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":  "invalid player data",
				"fields": fields,
			})
			return
		}
		s.Logger.WithError(err).Error("Failed to register player")
		writeError(w, http.StatusInternalServerError, "could not save player")
		return
	}

	token, err := auth.CreateJWT(p.ID, p.Name)
	if err != nil {
		s.Logger.WithError(err).Error("Failed to create session token")
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	s.Logger.WithField("player", p.ID).Info("Player registered")
	writeJSON(w, http.StatusCreated, registerResponse{Player: p, Token: token})
}

// MeHandler returns the record behind the caller's session.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	p, err := s.Gate.Lookup(r.Context(), claims.PlayerID)
	if errors.Is(err, identity.ErrPlayerNotFound) {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	if err != nil {
		s.Logger.WithError(err).Error("Failed to load player")
		writeError(w, http.StatusInternalServerError, "could not load player")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
