package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	handler := RequestID(RateLimit(0.001, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		request := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
		request.RemoteAddr = "10.0.0.1:5555"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		codes = append(codes, recorder.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected [204 204 429], got %v", codes)
	}

	request := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	request.RemoteAddr = "10.0.0.2:5555"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected separate bucket per address, got %d", recorder.Code)
	}
}

func TestVisitorsSweepIdleEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiters := newVisitors(1, 1)
	limiters.now = func() time.Time { return now }

	limiters.allow("10.0.0.1")
	now = now.Add(visitorIdleTTL + 2*time.Minute)
	limiters.allow("10.0.0.2")

	if _, ok := limiters.items["10.0.0.1"]; ok {
		t.Fatalf("expected idle visitor to be swept")
	}
	if len(limiters.items) != 1 {
		t.Fatalf("expected 1 visitor, got %d", len(limiters.items))
	}
}
