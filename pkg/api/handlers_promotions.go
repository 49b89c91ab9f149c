package api

import (
	"net/http"
)

// --- Promotion handlers ---

type promoteRequest struct {
	PromotionLevelID uint   `json:"promotion_level_id"`
	Description      string `json:"description"`
}

// handlePromote promotes a build to a level. Repromotion replaces the
// existing promotion in place.
func (s *server) handlePromote(w http.ResponseWriter, r *http.Request) {
	buildID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req promoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pr, err := s.tracker.Promote(
		r.Context(), signature(r), buildID, req.PromotionLevelID, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, pr)
}

func (s *server) handleDeletePromotion(w http.ResponseWriter, r *http.Request) {
	buildID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	levelID, err := urlID(r, "levelID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.tracker.DeletePromotion(
		r.Context(), signature(r), buildID, levelID,
	); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleBuildPromotions returns the promotion levels a build holds.
func (s *server) handleBuildPromotions(w http.ResponseWriter, r *http.Request) {
	buildID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	levels, err := s.tracker.BuildPromotionRollup(r.Context(), buildID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, levels)
}

// handleEarliestPromotion returns the earliest build at or before the
// given build that achieved the level, or null when none did.
func (s *server) handleEarliestPromotion(w http.ResponseWriter, r *http.Request) {
	buildID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	levelID, err := urlID(r, "levelID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	b, err := s.tracker.EarliestPromotion(r.Context(), buildID, levelID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

// handleCheckAutoPromotable evaluates the auto-promotion criteria for a
// build and level without promoting.
func (s *server) handleCheckAutoPromotable(w http.ResponseWriter, r *http.Request) {
	buildID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	levelID, err := urlID(r, "levelID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	eligible, err := s.tracker.IsAutoPromotable(r.Context(), buildID, levelID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"auto_promotable": eligible})
}
