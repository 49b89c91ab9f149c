package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/config"
	"github.com/ethpandaops/promotoor/pkg/entity"
	"github.com/ethpandaops/promotoor/pkg/tracker"
	"github.com/go-chi/chi/v5"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeError maps a tracker error code onto an HTTP status. Store
// failures are logged and masked.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var status int

	switch tracker.ErrCode(err) {
	case tracker.CodeNotFound:
		status = http.StatusNotFound
	case tracker.CodeNameConflict, tracker.CodeInvalidState:
		status = http.StatusConflict
	case tracker.CodeValidation, tracker.CodeImageRejected:
		status = http.StatusBadRequest
	default:
		s.log.WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, status, errorResponse{err.Error()})
}

// decodeBody decodes the JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return false
	}

	return true
}

// urlID parses a numeric URL parameter.
func urlID(r *http.Request, name string) (uint, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}

	return uint(v), nil
}

// urlKind parses and validates the entity kind URL parameter.
func urlKind(r *http.Request) (entity.Kind, error) {
	kind := entity.Kind(chi.URLParam(r, "kind"))
	if !entity.Valid(kind) {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}

	return kind, nil
}

// pagination reads offset/count query parameters, with the default
// page size as fallback.
func pagination(r *http.Request) (offset, count int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	count, _ = strconv.Atoi(r.URL.Query().Get("count"))
	if count <= 0 {
		count = config.DefaultPageSize
	}

	return offset, count
}

// --- Public handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig returns the public API configuration.
func (s *server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"auth": map[string]any{
			"anonymous_read": s.cfg.Auth.AnonymousRead,
		},
		"images": map[string]any{
			"max_bytes": s.cfg.Images.MaxBytes,
		},
	})
}

// --- Account handlers ---

type accountResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Source   string `json:"source"`
}

func toAccountResponse(a *store.Account) accountResponse {
	return accountResponse{
		ID:       a.ID,
		Username: a.Username,
		FullName: a.FullName,
		Role:     a.Role,
		Source:   a.Source,
	}
}

// handleMe returns the currently authenticated account.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())
	if account == nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"not authenticated"})

		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// handleListAccounts returns all accounts.
func (s *server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, err)

		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		resp = append(resp, toAccountResponse(&accounts[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}
