package api

import (
	"net/http"

	"github.com/seantiz/conductor/internal/store"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Submitted  int64            `json:"submitted"`
	Incomplete int64            `json:"incomplete"`
	Active     int64            `json:"active"`
	Retained   int              `json:"retained"`
	Tags       int              `json:"tags"`
	History    *store.TaskStats `json:"history,omitempty"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Submitted:  s.manager.TotalSubmitted(),
		Incomplete: s.manager.NumIncomplete(),
		Active:     s.manager.NumActive(),
		Retained:   len(s.manager.GetAllTasks()),
		Tags:       len(s.manager.GetTaskTags()),
	}

	if s.history != nil {
		stats, err := s.history.GetStats(r.Context())
		if err != nil {
			s.logger.Error("get history stats", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		resp.History = stats
	}

	s.writeJSON(w, http.StatusOK, resp)
}
