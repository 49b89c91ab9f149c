package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethpandaops/promotoor/pkg/api/store"
)

type moveRequest struct {
	Direction string `json:"direction"`
}

// --- Promotion level handlers ---

func (s *server) handleListPromotionLevels(w http.ResponseWriter, r *http.Request) {
	branchID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	levels, err := s.tracker.ListPromotionLevels(r.Context(), branchID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, levels)
}

func (s *server) handleCreatePromotionLevel(w http.ResponseWriter, r *http.Request) {
	branchID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pl, err := s.tracker.CreatePromotionLevel(
		r.Context(), signature(r), branchID, req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, pl)
}

func (s *server) handleGetPromotionLevel(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	pl, err := s.tracker.GetPromotionLevel(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, pl)
}

func (s *server) handleUpdatePromotionLevel(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pl, err := s.tracker.UpdatePromotionLevel(
		r.Context(), signature(r), id, req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, pl)
}

func (s *server) handleDeletePromotionLevel(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.tracker.DeletePromotionLevel(r.Context(), signature(r), id); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *server) handleMovePromotionLevel(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	up, ok := moveDirection(req.Direction)
	if !ok {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"direction must be up or down"})

		return
	}

	moved, err := s.tracker.MovePromotionLevel(r.Context(), signature(r), id, up)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

type autoPromoteRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *server) handleSetAutoPromote(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req autoPromoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	outcome, err := s.tracker.SetAutoPromote(
		r.Context(), signature(r), id, req.Enabled,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (s *server) handleSetPromotionLevelImage(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	data, ok := s.readImageBody(w, r)
	if !ok {
		return
	}

	if err := s.tracker.SetPromotionLevelImage(
		r.Context(), signature(r), id, data,
	); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleGetPromotionLevelImage(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	data, err := s.tracker.GetPromotionLevelImage(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeImage(w, data)
}

func (s *server) handleListPromotedRuns(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	offset, count := pagination(r)

	runs, err := s.tracker.ListPromotedRuns(r.Context(), id, offset, count)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleLastBuildWithPromotion(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	b, err := s.tracker.LastBuildWithPromotion(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

// --- Validation stamp handlers ---

func (s *server) handleListValidationStamps(w http.ResponseWriter, r *http.Request) {
	branchID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	stamps, err := s.tracker.ListValidationStamps(r.Context(), branchID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, stamps)
}

func (s *server) handleCreateValidationStamp(w http.ResponseWriter, r *http.Request) {
	branchID, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	vs, err := s.tracker.CreateValidationStamp(
		r.Context(), signature(r), branchID, req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, vs)
}

func (s *server) handleGetValidationStamp(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	vs, err := s.tracker.GetValidationStamp(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, vs)
}

func (s *server) handleUpdateValidationStamp(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req namedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	vs, err := s.tracker.UpdateValidationStamp(
		r.Context(), signature(r), id, req.Name, req.Description,
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, vs)
}

func (s *server) handleDeleteValidationStamp(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.tracker.DeleteValidationStamp(r.Context(), signature(r), id); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type linkRequest struct {
	PromotionLevelID uint `json:"promotion_level_id"`
}

func (s *server) handleLinkValidationStamp(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.tracker.LinkValidationStamp(
		r.Context(), signature(r), id, req.PromotionLevelID,
	); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleUnlinkValidationStamp(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.tracker.UnlinkValidationStamp(
		r.Context(), signature(r), id,
	); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ownerRequest struct {
	OwnerID *uint `json:"owner_id"`
}

func (s *server) handleSetValidationStampOwner(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req ownerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.tracker.SetValidationStampOwner(
		r.Context(), signature(r), id, req.OwnerID,
	); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleMoveValidationStamp(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	up, ok := moveDirection(req.Direction)
	if !ok {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"direction must be up or down"})

		return
	}

	moved, err := s.tracker.MoveValidationStamp(r.Context(), signature(r), id, up)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

func (s *server) handleSetValidationStampImage(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	data, ok := s.readImageBody(w, r)
	if !ok {
		return
	}

	if err := s.tracker.SetValidationStampImage(
		r.Context(), signature(r), id, data,
	); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleGetValidationStampImage(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	data, err := s.tracker.GetValidationStampImage(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeImage(w, data)
}

// handleStampStatuses returns the latest statuses across the stamp's
// most recent runs. The runs query parameter bounds the window.
func (s *server) handleStampStatuses(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	n, _ := strconv.Atoi(r.URL.Query().Get("runs"))
	if n <= 0 {
		n = 10
	}

	statuses, err := s.tracker.StatusesForLastRuns(r.Context(), id, n)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, statuses)
}

// handleStampStatusHistory pages through every status change recorded
// against the stamp's runs, newest first.
func (s *server) handleStampStatusHistory(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	offset, count := pagination(r)

	statuses, err := s.tracker.StampStatusHistory(r.Context(), id, offset, count)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, statuses)
}

// handleLastBuildWithStampStatus returns the most recent build whose
// latest run status for the stamp is in the requested set, e.g.
// ?statuses=PASSED,FIXED.
func (s *server) handleLastBuildWithStampStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	raw := r.URL.Query().Get("statuses")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"statuses query parameter is required"})

		return
	}

	var statuses []store.Status
	for _, part := range strings.Split(raw, ",") {
		statuses = append(statuses, store.Status(strings.TrimSpace(part)))
	}

	b, err := s.tracker.LastBuildWithStampStatus(r.Context(), id, statuses)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

// --- Shared helpers ---

func moveDirection(direction string) (up, ok bool) {
	switch direction {
	case "up":
		return true, true
	case "down":
		return false, true
	default:
		return false, false
	}
}

// readImageBody reads an uploaded image, bounded slightly above the
// configured maximum so oversize payloads still reach the tracker's
// size check and get a proper rejection.
func (s *server) readImageBody(
	w http.ResponseWriter, r *http.Request,
) ([]byte, bool) {
	body := http.MaxBytesReader(w, r.Body, int64(s.cfg.Images.MaxBytes)+1)

	data, err := io.ReadAll(body)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge,
			errorResponse{"image payload too large"})

		return nil, false
	}

	return data, true
}

func writeImage(w http.ResponseWriter, data []byte) {
	if len(data) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{"no image"})

		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
