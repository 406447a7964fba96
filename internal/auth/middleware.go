package auth

import (
	"encoding/json"
	"errors"
	"go.uber.org/zap"
	"net/http"
	"strconv"
)

// HeaderUserID is set by the gateway after it has validated the bearer token.
const HeaderUserID = "X-User-ID"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Authenticate resolves the caller role and stores the Identity on the
// request context. Requests without a known user get 401.
func Authenticate(res Resolver, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
			if err != nil || uid <= 0 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
				return
			}
			id, err := res.ResolveIdentity(r.Context(), uid)
			if errors.Is(err, ErrUnknownUser) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
				return
			}
			if err != nil {
				log.Error("resolve identity", zap.Int64("user_id", uid), zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service temporarily unavailable"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects callers whose role is not in roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok || !id.Is(roles...) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
