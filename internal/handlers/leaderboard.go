package handlers

import (
	"net/http"
	"strconv"

	"github.com/jason-s-yu/memoria/internal/leaderboard"
	"github.com/jason-s-yu/memoria/internal/models"
)

// maxLeaderboardLimit bounds ?limit= on the top query.
const maxLeaderboardLimit = 100

// TopHandler returns the best entries, three by default.
func (s *Server) TopHandler(w http.ResponseWriter, r *http.Request) {
	limit := leaderboard.DefaultTopN
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	entries, err := s.Rankings.TopRankings(r.Context(), limit)
	if err != nil {
		s.Logger.WithError(err).Error("Failed to load leaderboard")
		writeError(w, http.StatusInternalServerError, "could not load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// HistoryHandler returns every recorded round in rank order.
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Rankings.AllRankings(r.Context())
	if err != nil {
		s.Logger.WithError(err).Error("Failed to load leaderboard history")
		writeError(w, http.StatusInternalServerError, "could not load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func nonNil(entries []models.RankingEntry) []models.RankingEntry {
	if entries == nil {
		return []models.RankingEntry{}
	}
	return entries
}
