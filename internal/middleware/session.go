package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/repository"
	"github.com/sociogram/internal/storage"
)

// SessionAuth resolves the session token to a user id and puts both on the
// request context. The token comes from the Authorization header (Bearer) or,
// for websocket upgrades where custom headers are unavailable, from the
// session_id query parameter.
func SessionAuth(store storage.SessionStore, sessions *repository.SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("session_id")
			}
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			userID, err := store.GetSession(r.Context(), token)
			if err != nil {
				logger.Errorf("session middleware GetSession session_id=%s: %v", MaskSessionID(token), err)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				return
			}
			if userID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if err := sessions.UpdateLastSeen(r.Context(), token, time.Now().UTC()); err != nil {
				logger.Errorf("session middleware UpdateLastSeen session_id=%s: %v", MaskSessionID(token), err)
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, SessionIDKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
