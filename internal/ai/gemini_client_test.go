package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iago/studyhub-back/internal/domain"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) total() time.Duration {
	var sum time.Duration
	for _, delay := range s.delays {
		sum += delay
	}
	return sum
}

const successBody = `{
	"candidates":[{"content":{"role":"model","parts":[{"text":"{\"title\":\"ok\"}"}]}}],
	"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":5,"totalTokenCount":17},
	"modelVersion":"gemini-2.5-flash-lite"
}`

func newScriptedServer(t *testing.T, statuses []int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		current := int(atomic.AddInt32(calls, 1))
		status := http.StatusOK
		if current <= len(statuses) {
			status = statuses[current-1]
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"status ` + http.StatusText(status) + `"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(successBody))
	}))
}

func newTestClient(baseURL string, recorder *sleepRecorder) *GeminiClient {
	return NewGeminiClient(GeminiClientConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Sleep:   recorder.sleep,
	})
}

func userRequest(text string) GenerateRequest {
	return GenerateRequest{Contents: []Message{{Role: "user", Text: text}}}
}

func TestGeminiClientSendsGenerateContentRequest(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash-lite:generateContent" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	recorder := &sleepRecorder{}
	client := newTestClient(server.URL, recorder)
	result, err := client.Generate(context.Background(), GenerateRequest{
		SystemInstruction: "be brief",
		Contents: []Message{
			{Role: "user", Text: "hi"},
			{Role: "model", Text: "hello"},
			{Role: "user", Text: "summarize"},
		},
	})
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if result.Text != `{"title":"ok"}` {
		t.Fatalf("expected candidate text, got %q", result.Text)
	}
	if result.Usage.TotalTokens != 17 {
		t.Fatalf("expected total tokens 17, got %d", result.Usage.TotalTokens)
	}
	if result.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", result.Attempts)
	}

	contents, _ := captured["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	second, _ := contents[1].(map[string]any)
	if second["role"] != "model" {
		t.Fatalf("expected model role on second turn, got %v", second["role"])
	}
	if _, ok := captured["systemInstruction"]; !ok {
		t.Fatalf("expected systemInstruction in payload")
	}
}

func TestGeminiClientRetriesUntilSuccess(t *testing.T) {
	var calls int32
	server := newScriptedServer(t, []int{429, 500}, &calls)
	defer server.Close()

	recorder := &sleepRecorder{}
	result, err := newTestClient(server.URL, recorder).Generate(context.Background(), userRequest("x"))
	if err != nil {
		t.Fatalf("expected success after retries, got err=%v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
	if recorder.total() != 3*time.Second {
		t.Fatalf("expected total backoff 3s, got %s", recorder.total())
	}
}

func TestGeminiClientDoesNotRetryClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized} {
		var calls int32
		server := newScriptedServer(t, []int{status, status}, &calls)

		recorder := &sleepRecorder{}
		_, err := newTestClient(server.URL, recorder).Generate(context.Background(), userRequest("x"))
		server.Close()

		var domainErr *domain.Error
		if !errors.As(err, &domainErr) {
			t.Fatalf("expected domain error for status %d, got %v", status, err)
		}
		if domainErr.Kind != domain.KindClient || domainErr.Status != status {
			t.Fatalf("expected client error with status %d, got %+v", status, domainErr)
		}
		if domainErr.Message != domain.MessageInvalidRequest {
			t.Fatalf("expected invalid request message, got %q", domainErr.Message)
		}
		if calls != 1 {
			t.Fatalf("expected exactly one call for status %d, got %d", status, calls)
		}
		if len(recorder.delays) != 0 {
			t.Fatalf("expected no sleep for status %d, got %v", status, recorder.delays)
		}
	}
}

func TestGeminiClientReturnsOtherStatusesAsIs(t *testing.T) {
	var calls int32
	server := newScriptedServer(t, []int{http.StatusNotFound}, &calls)
	defer server.Close()

	recorder := &sleepRecorder{}
	_, err := newTestClient(server.URL, recorder).Generate(context.Background(), userRequest("x"))
	if domain.KindOf(err) != domain.KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if calls != 1 || len(recorder.delays) != 0 {
		t.Fatalf("expected single call without sleep, got calls=%d delays=%v", calls, recorder.delays)
	}
}

func TestGeminiClientSurfacesLastErrorWhenRetriesExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("model overloaded"))
	}))
	defer server.Close()

	recorder := &sleepRecorder{}
	_, err := newTestClient(server.URL, recorder).Generate(context.Background(), userRequest("x"))

	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Kind != domain.KindTransient || domainErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected transient 503, got %+v", domainErr)
	}
	if domainErr.Body != "model overloaded" {
		t.Fatalf("expected last body text, got %q", domainErr.Body)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(recorder.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, recorder.delays)
	}
	for index := range want {
		if recorder.delays[index] != want[index] {
			t.Fatalf("expected delays %v, got %v", want, recorder.delays)
		}
	}
}

func TestGeminiClientRateLimitExhaustion(t *testing.T) {
	var calls int32
	server := newScriptedServer(t, []int{429, 429, 429, 429}, &calls)
	defer server.Close()

	_, err := newTestClient(server.URL, &sleepRecorder{}).Generate(context.Background(), userRequest("x"))
	if !errors.Is(err, &domain.Error{Kind: domain.KindRateLimit, Message: domain.MessageRateLimited}) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestGeminiClientRequiresAPIKey(t *testing.T) {
	client := NewGeminiClient(GeminiClientConfig{})
	if client.Available() {
		t.Fatalf("expected client without key to be unavailable")
	}
	_, err := client.Generate(context.Background(), userRequest("x"))
	if domain.KindOf(err) != domain.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected error to name the missing key, got %v", err)
	}
}

func TestGeminiClientStreamReturnsBodyAfterRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("line-1\nline-2\n"))
	}))
	defer server.Close()

	recorder := &sleepRecorder{}
	body, err := newTestClient(server.URL, recorder).Stream(context.Background(), userRequest("x"))
	if err != nil {
		t.Fatalf("expected stream, got err=%v", err)
	}
	defer body.Close()

	raw, _ := io.ReadAll(body)
	if string(raw) != "line-1\nline-2\n" {
		t.Fatalf("expected raw body passthrough, got %q", raw)
	}
	if len(recorder.delays) != 1 || recorder.delays[0] != time.Second {
		t.Fatalf("expected one 1s backoff, got %v", recorder.delays)
	}
}
