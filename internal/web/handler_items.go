package web

import (
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 50
	searchLimit     = 50
)

// handleListItems returns recent items, or matches for q when supplied. The
// remote client degrades to an empty list on failure and so does this route.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("q"); q != "" {
		items := s.items.SearchItems(r.Context(), q, searchLimit)
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "query": q}, s.logger)
		return
	}

	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	items := s.items.ListItems(r.Context(), page, defaultPageSize)
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "page": page}, s.logger)
}

func (s *Server) handleMoveItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	locationID := r.PostFormValue("location_id")
	if locationID == "" {
		http.Error(w, "location_id required", http.StatusBadRequest)
		return
	}
	if !s.items.MoveItem(r.Context(), id, locationID) {
		s.logger.Error("move item failed", "item_id", id, "reason", s.items.LastError())
		http.Error(w, "failed to move item", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.items.DeleteItem(r.Context(), id) {
		s.logger.Error("delete item failed", "item_id", id, "reason", s.items.LastError())
		http.Error(w, "failed to delete item", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}
