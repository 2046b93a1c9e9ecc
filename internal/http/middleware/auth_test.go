package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func userEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserID(r.Context())))
	})
}

func signToken(t *testing.T, secret, subject string, method jwt.SigningMethod) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthWithoutCredentialsUsesHeaderUser(t *testing.T) {
	handler := Auth(AuthConfig{})(userEcho())

	request := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	request.Header.Set("X-User-Id", "student-7")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK || recorder.Body.String() != "student-7" {
		t.Fatalf("expected student-7, got %d %q", recorder.Code, recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/files", nil))
	if recorder.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous, got %q", recorder.Body.String())
	}
}

func TestAuthStaticToken(t *testing.T) {
	handler := Auth(AuthConfig{Token: "secret-token"})(userEcho())

	request := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	request.Header.Set("Authorization", "Bearer wrong")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, recorder.Code)
	}

	request = httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	request.Header.Set("Authorization", "Bearer secret-token")
	request.Header.Set("X-User-Id", "u1")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK || recorder.Body.String() != "u1" {
		t.Fatalf("expected u1, got %d %q", recorder.Code, recorder.Body.String())
	}
}

func TestAuthJWTSubjectIsUser(t *testing.T) {
	handler := Auth(AuthConfig{JWTSecret: "jwt-secret"})(userEcho())

	request := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	request.Header.Set("Authorization", "Bearer "+signToken(t, "jwt-secret", "user-42", jwt.SigningMethodHS256))
	request.Header.Set("X-User-Id", "spoofed")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK || recorder.Body.String() != "user-42" {
		t.Fatalf("expected user-42, got %d %q", recorder.Code, recorder.Body.String())
	}

	for _, token := range []string{
		signToken(t, "other-secret", "user-42", jwt.SigningMethodHS256),
		signToken(t, "jwt-secret", "user-42", jwt.SigningMethodHS512),
		signToken(t, "jwt-secret", "", jwt.SigningMethodHS256),
	} {
		request := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, recorder.Code)
		}
	}
}

func TestAuthSkipsNonAPIRoutes(t *testing.T) {
	handler := Auth(AuthConfig{Token: "secret-token"})(userEcho())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
}
