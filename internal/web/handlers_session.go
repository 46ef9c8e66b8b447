package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/RosterImport/internal/core"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead is added to the file size limit to leave room for the
// multipart envelope and form fields.
const multipartOverhead = 1 << 20

// maxJSONBody bounds selection, auto-correct and commit request bodies.
const maxJSONBody = 4 << 20

// handleCreateSession parses an uploaded workbook into a new session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, r, errFileTooLarge)
			return
		}
		s.respondError(w, r, badRequest("invalid multipart form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, badRequest(errNoFile.Error(), err))
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		s.respondError(w, r, errFileTooLarge)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, badRequest("read upload", err))
		return
	}

	view, err := s.service.CreateSession(r.Context(), header.Filename, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, view)
}

// handleGetSession returns the session with full sheet detail.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, view)
}

// handleUpdateSelection replaces the session's selection.
func (s *Server) handleUpdateSelection(w http.ResponseWriter, r *http.Request) {
	var req core.SelectionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.UpdateSelection(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleAutoCorrect applies suggestions. An empty body corrects every row.
func (s *Server) handleAutoCorrect(w http.ResponseWriter, r *http.Request) {
	var req core.AutoCorrectRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.AutoCorrect(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleCommit imports the selected rows. Business failures come back as
// 200 with success false.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req core.CommitRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.respondError(w, r, err)
		return
	}
	policy, err := core.ParseConflictResolution(string(req.ConflictResolution))
	if err != nil {
		s.respondError(w, r, badRequest("invalid request", err))
		return
	}
	req.ConflictResolution = policy

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Commit(ctx, chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleDeleteSession abandons a session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are rejected.
// With allowEmpty, a missing body leaves v at its zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return badRequest("invalid request body", err)
	}
	return nil
}
