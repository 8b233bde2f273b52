package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const identityKey ctxKey = iota

// Identity is the already-authenticated user attached to a request. The
// session layer trusts it as-is; issuing tokens is someone else's job.
type Identity struct {
	UserID      string
	DisplayName string
}

// Authenticate verifies an HS256 bearer token and injects the userId and
// displayName claims into the request context.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
				return
			}
			token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
				return
			}
			claims, _ := token.Claims.(jwt.MapClaims)
			userID, _ := claims["userId"].(string)
			displayName, _ := claims["displayName"].(string)
			if userID == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, Identity{
				UserID:      userID,
				DisplayName: displayName,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFrom(r *http.Request) (Identity, bool) {
	id, ok := r.Context().Value(identityKey).(Identity)
	return id, ok
}
