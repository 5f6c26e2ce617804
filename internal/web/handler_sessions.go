package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"snapshelf/internal/capture"
)

// maxUploadBytes bounds the multipart form held in memory per photo upload.
const maxUploadBytes = 25 << 20

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("id")
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image file required", http.StatusBadRequest)
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("read upload failed", "session", sid, "error", err)
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	res, err := s.workflow.OnPhotoReceived(r.Context(), sid, capture.Photo{
		Data:     data,
		Caption:  r.FormValue("caption"),
		Language: r.FormValue("language"),
		Model:    r.FormValue("model"),
	})
	s.respond(w, sid, res, err)
}

// handleEdit serves both halves of the edit exchange: a request without a
// value field opens the prompt for that draft field, one with a value
// submits it.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("id")
	field := r.PathValue("field")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	if r.PostForm.Has("value") {
		res, err := s.workflow.OnFieldEditSubmitted(r.Context(), sid, field, r.PostForm.Get("value"))
		s.respond(w, sid, res, err)
		return
	}
	res, err := s.workflow.OnEditRequested(r.Context(), sid, field)
	s.respond(w, sid, res, err)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("id")
	locationID := r.PostFormValue("location_id")
	if locationID == "" {
		http.Error(w, "location_id required", http.StatusBadRequest)
		return
	}
	res, err := s.workflow.OnLocationChosen(r.Context(), sid, locationID)
	s.respond(w, sid, res, err)
}

func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("id")
	res, err := s.workflow.OnReanalysisRequested(r.Context(), sid, r.PostFormValue("hint"))
	s.respond(w, sid, res, err)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("id")
	res, err := s.workflow.OnBack(r.Context(), sid)
	s.respond(w, sid, res, err)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("id")
	res, err := s.workflow.OnConfirm(r.Context(), sid)
	s.respond(w, sid, res, err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("id")
	res, err := s.workflow.OnCancel(r.Context(), sid)
	s.respond(w, sid, res, err)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("id")
	res, err := s.workflow.Snapshot(r.Context(), sid)
	s.respond(w, sid, res, err)
}

// statusForCode maps workflow outcomes onto HTTP statuses. A success with a
// warning still reads as success; callers see the warning in the code field.
func statusForCode(code capture.Code) int {
	switch code {
	case capture.CodeOK, capture.CodePhotoUploadFailed:
		return http.StatusOK
	case capture.CodeInvalidImage, capture.CodeInvalidInput, capture.CodeUnknownLocation:
		return http.StatusUnprocessableEntity
	case capture.CodeDraftInProgress, capture.CodeNoActiveDraft:
		return http.StatusConflict
	case capture.CodeNoLocations, capture.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case capture.CodeRemoteRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respond(w http.ResponseWriter, sid string, res *capture.Result, err error) {
	if err != nil {
		s.logger.Error("workflow event failed", "session", sid, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, statusForCode(res.Code), res, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
