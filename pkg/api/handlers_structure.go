package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type namedRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// --- Project handlers ---

func (s *server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.tracker.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, projects)
}

func (s *server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.tracker.CreateProject(
		r.Context(), signature(r), req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (s *server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	p, err := s.tracker.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleGetProjectByName(w http.ResponseWriter, r *http.Request) {
	p, err := s.tracker.GetProjectByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.tracker.UpdateProject(
		r.Context(), signature(r), id, req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.tracker.DeleteProject(r.Context(), signature(r), id); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *server) handleProjectDashboard(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	sections, err := s.tracker.Dashboard(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, sections)
}

// handleOverview returns branch dashboards across every project.
func (s *server) handleOverview(w http.ResponseWriter, r *http.Request) {
	boards, err := s.tracker.Overview(r.Context())
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, boards)
}

// --- Branch handlers ---

func (s *server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	branches, err := s.tracker.ListBranches(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, branches)
}

func (s *server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := s.tracker.CreateBranch(
		r.Context(), signature(r), projectID, req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, b)
}

func (s *server) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	b, err := s.tracker.GetBranch(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *server) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := s.tracker.UpdateBranch(
		r.Context(), signature(r), id, req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *server) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.tracker.DeleteBranch(r.Context(), signature(r), id); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *server) handleCloneBranch(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	clone, err := s.tracker.CloneBranch(
		r.Context(), signature(r), id, req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, clone)
}

func (s *server) handleBranchDashboard(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	section, err := s.tracker.DashboardBranchSection(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, section)
}
