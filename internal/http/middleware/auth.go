package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/iago/studyhub-back/internal/logging"
)

const anonymousUser = "anonymous"

type AuthConfig struct {
	// Token is a shared bearer token. Ignored when JWTSecret is set.
	Token string
	// JWTSecret enables HS256 bearer tokens whose subject is the user id.
	JWTSecret string
}

// Auth protects /v1/ routes and puts the caller's user id on the context.
// Without any credentials configured every request is accepted and the user
// id comes from X-User-Id.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	secret := []byte(strings.TrimSpace(cfg.JWTSecret))
	token := strings.TrimSpace(cfg.Token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/v1/") {
				next.ServeHTTP(w, r)
				return
			}

			userID := headerUserID(r)
			if len(secret) > 0 || token != "" {
				bearer, ok := bearerToken(r)
				if !ok {
					writeUnauthorized(w, r)
					return
				}
				if len(secret) > 0 {
					subject, err := parseSubject(bearer, secret)
					if err != nil {
						writeUnauthorized(w, r)
						return
					}
					userID = subject
				} else if bearer != token {
					writeUnauthorized(w, r)
					return
				}
			}

			ctx := logging.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID is the authenticated caller. Handlers behind Auth always get a
// non-empty value.
func UserID(ctx context.Context) string {
	if userID := logging.UserID(ctx); userID != "" {
		return userID
	}
	return anonymousUser
}

func headerUserID(r *http.Request) string {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" || len(userID) > 128 {
		return anonymousUser
	}
	return userID
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := r.Header.Get("Authorization")
	if len(authorization) < 7 || !strings.EqualFold(authorization[:7], "bearer ") {
		return "", false
	}
	value := strings.TrimSpace(authorization[7:])
	return value, value != ""
}

func parseSubject(raw string, secret []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	writeErrorJSON(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
}
