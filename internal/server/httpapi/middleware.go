package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/mediaflow/internal/common"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// authMiddleware verifies the bearer token and stores the user id in the
// request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get(common.AuthorizationHeaderName)
		if !strings.HasPrefix(h, common.BearerPrefix) {
			writeError(w, common.ErrorUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(h, common.BearerPrefix))
		if token == "" {
			writeError(w, common.ErrorUnauthorized)
			return
		}

		userID, err := s.tokens.UserID(token)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				writeError(w, common.ErrTokenExpired)
				return
			}
			writeError(w, common.ErrorUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
