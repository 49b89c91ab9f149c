package api

import (
	"net/http"

	"github.com/ethpandaops/promotoor/pkg/api/store"
)

// --- Comment handlers ---

type commentRequest struct {
	Content string `json:"content"`
}

func (s *server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	kind, err := urlKind(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req commentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := s.tracker.CreateComment(
		r.Context(), signature(r), kind, id, req.Content,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (s *server) handleListComments(w http.ResponseWriter, r *http.Request) {
	kind, err := urlKind(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	offset, count := pagination(r)

	comments, err := s.tracker.ListComments(r.Context(), kind, id, offset, count)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, comments)
}

// --- Property handlers ---

type propertyRequest struct {
	Extension string `json:"extension"`
	Name      string `json:"name"`
	Value     string `json:"value"`
}

func (s *server) handleGetProperties(w http.ResponseWriter, r *http.Request) {
	kind, err := urlKind(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	props, err := s.tracker.GetProperties(r.Context(), kind, id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, props)
}

func (s *server) handleSetProperties(w http.ResponseWriter, r *http.Request) {
	kind, err := urlKind(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req []propertyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	props := make([]store.Property, 0, len(req))
	for _, p := range req {
		props = append(props, store.Property{
			Extension: p.Extension,
			Name:      p.Name,
			Value:     p.Value,
		})
	}

	if err := s.tracker.SetProperties(r.Context(), kind, id, props); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Event handlers ---

func (s *server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	offset, count := pagination(r)

	events, err := s.tracker.ListEvents(r.Context(), offset, count)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (s *server) handleListEntityEvents(w http.ResponseWriter, r *http.Request) {
	kind, err := urlKind(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	offset, count := pagination(r)

	events, err := s.tracker.ListEntityEvents(r.Context(), kind, id, offset, count)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, events)
}
