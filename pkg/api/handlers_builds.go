package api

import (
	"net/http"
	"strconv"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/tracker"
	"github.com/go-chi/chi/v5"
)

// --- Build handlers ---

// handleListBuilds lists a branch's builds, most recent first. The
// since_level and with_level query parameters switch to the filtered
// query; otherwise offset/count paging applies.
func (s *server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	branchID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	q := r.URL.Query()
	sinceLevel := q.Get("since_level")
	withLevel := q.Get("with_level")

	if sinceLevel != "" || withLevel != "" {
		limit, _ := strconv.Atoi(q.Get("count"))

		builds, err := s.tracker.QueryBuilds(r.Context(), branchID, tracker.BuildFilter{
			SincePromotionLevel: sinceLevel,
			WithPromotionLevel:  withLevel,
			Limit:               limit,
		})
		if err != nil {
			s.writeError(w, err)

			return
		}

		writeJSON(w, http.StatusOK, builds)

		return
	}

	offset, count := pagination(r)

	builds, err := s.tracker.ListBuilds(r.Context(), branchID, offset, count)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, builds)
}

func (s *server) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	branchID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := s.tracker.CreateBuild(
		r.Context(), signature(r), branchID, req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, b)
}

func (s *server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	b, err := s.tracker.GetBuild(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *server) handleFindBuildByName(w http.ResponseWriter, r *http.Request) {
	branchID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	b, err := s.tracker.FindBuildByName(
		r.Context(), branchID, chi.URLParam(r, "name"),
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *server) handleLastBuild(w http.ResponseWriter, r *http.Request) {
	branchID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	b, err := s.tracker.LastBuild(r.Context(), branchID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *server) handleDeleteBuild(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.tracker.DeleteBuild(r.Context(), signature(r), id); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Validation run handlers ---

type createRunRequest struct {
	ValidationStampID uint   `json:"validation_stamp_id"`
	Description       string `json:"description"`
	Status            string `json:"status"`
	StatusDescription string `json:"status_description"`
}

func (s *server) handleCreateValidationRun(w http.ResponseWriter, r *http.Request) {
	buildID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req createRunRequest
	if !decodeBody(w, r, &req) {
		return
	}

	vr, err := s.tracker.CreateValidationRun(
		r.Context(), signature(r),
		buildID, req.ValidationStampID,
		req.Description,
		store.Status(req.Status),
		req.StatusDescription,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, vr)
}

// handleListValidationRuns lists a build's runs, optionally narrowed to
// one stamp via the stamp_id query parameter.
func (s *server) handleListValidationRuns(w http.ResponseWriter, r *http.Request) {
	buildID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	stampID, _ := strconv.ParseUint(r.URL.Query().Get("stamp_id"), 10, 32)

	runs, err := s.tracker.ListValidationRuns(r.Context(), buildID, uint(stampID))
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetValidationRun(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	vr, err := s.tracker.GetValidationRun(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, vr)
}

type addStatusRequest struct {
	Status      string `json:"status"`
	Description string `json:"description"`
}

func (s *server) handleAddRunStatus(w http.ResponseWriter, r *http.Request) {
	runID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req addStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	vrs, err := s.tracker.AddValidationRunStatus(
		r.Context(), signature(r), runID, store.Status(req.Status), req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, vrs)
}

func (s *server) handleListRunStatuses(w http.ResponseWriter, r *http.Request) {
	runID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	offset, count := pagination(r)

	statuses, err := s.tracker.ListValidationRunStatuses(
		r.Context(), runID, offset, count,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, statuses)
}

func (s *server) handleLastRunStatus(w http.ResponseWriter, r *http.Request) {
	runID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	vrs, err := s.tracker.LastValidationRunStatus(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, vrs)
}

// handleBuildStampRollup summarizes every run of a stamp on a build,
// each with its authoritative status and bounded status history.
func (s *server) handleBuildStampRollup(w http.ResponseWriter, r *http.Request) {
	buildID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	stampID, err := urlID(r, "stampID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	summaries, err := s.tracker.BuildValidationStampRollup(
		r.Context(), buildID, stampID,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, summaries)
}
