package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/conductor/internal/effector"
	"github.com/seantiz/conductor/internal/engine"
)

// invokeRequest is the optional JSON body for
// POST /v1/entities/{id}/effectors/{name}.
type invokeRequest struct {
	Args map[string]any `json:"args"`
}

func (s *Server) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleInvokeEffector(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	t, err := s.registry.InvokeAsync(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"), req.Args)
	switch {
	case errors.Is(err, effector.ErrEntityNotFound), errors.Is(err, effector.ErrEffectorNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, effector.ErrMissingArgument), errors.Is(err, effector.ErrUnknownArgument):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, engine.ErrManagerClosed):
		s.writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		s.logger.Error("invoke effector", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to invoke effector")
		return
	}

	w.Header().Set("Location", "/v1/tasks/"+t.ID())
	s.writeJSON(w, http.StatusAccepted, t.Record())
}
