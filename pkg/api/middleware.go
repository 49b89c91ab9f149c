package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ethpandaops/promotoor/pkg/api/store"
	"github.com/ethpandaops/promotoor/pkg/tracker"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const accountContextKey contextKey = "account"

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireAuth validates Basic credentials against the seeded accounts
// and injects the account into the request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="promotoor"`)
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		account, err := s.store.GetAccountByUsername(r.Context(), username)
		if err != nil || !checkPassword(account.PasswordHash, password) {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"invalid credentials"})

			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole checks that the authenticated account has the specified role.
func (s *server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := accountFromContext(r.Context())
			if account == nil || account.Role != role {
				writeJSON(w, http.StatusForbidden,
					errorResponse{"insufficient permissions"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// accountFromContext extracts the authenticated account from the request
// context.
func accountFromContext(ctx context.Context) *store.Account {
	account, _ := ctx.Value(accountContextKey).(*store.Account)

	return account
}

// signature resolves the acting account into a tracker signature. All
// mutating routes sit behind requireAuth, so the account is present.
func signature(r *http.Request) tracker.Signature {
	account := accountFromContext(r.Context())
	if account == nil {
		return tracker.Signature{Name: "anonymous"}
	}

	return tracker.Signature{Name: account.Username, AccountID: &account.ID}
}

// checkPassword compares a bcrypt hash with a plaintext password.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword(
		[]byte(hash), []byte(password),
	) == nil
}
