package transcription

import (
	"context"
	"encoding/json"
	"errors"
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

type fakeAssemblyAI struct {
	statuses []string
	polls    int32
	submit   map[string]any
}

func (f *fakeAssemblyAI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "assembly-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/transcript":
			_ = json.NewDecoder(r.Body).Decode(&f.submit)
			_, _ = w.Write([]byte(`{"id":"job-123","status":"queued"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v2/transcript/job-123":
			index := int(atomic.AddInt32(&f.polls, 1)) - 1
			status := "processing"
			if index < len(f.statuses) {
				status = f.statuses[index]
			}
			switch status {
			case "completed":
				_, _ = w.Write([]byte(`{"id":"job-123","status":"completed","text":"hello there","audio_duration":12.5,"words":[{"text":"hello","start":0,"end":400,"confidence":0.98},{"text":"there","start":410,"end":800,"confidence":0.95}]}`))
			case "error":
				_, _ = w.Write([]byte(`{"id":"job-123","status":"error","error":"audio file is corrupt"}`))
			case "unavailable":
				w.WriteHeader(http.StatusServiceUnavailable)
			default:
				_, _ = w.Write([]byte(`{"id":"job-123","status":"` + status + `"}`))
			}
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newPoller(baseURL string, recorder *sleepRecorder) *AssemblyAIClient {
	return NewAssemblyAIClient(AssemblyAIConfig{
		APIKey:  "assembly-key",
		BaseURL: baseURL,
		Sleep:   recorder.sleep,
	})
}

func TestTranscribePollsUntilCompleted(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{"queued", "processing", "processing", "completed"}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	recorder := &sleepRecorder{}
	transcript, err := newPoller(server.URL, recorder).Transcribe(context.Background(), "https://cdn.example/audio.mp3")
	if err != nil {
		t.Fatalf("expected transcript, got err=%v", err)
	}
	if atomic.LoadInt32(&fake.polls) != 4 || transcript.Polls != 4 {
		t.Fatalf("expected exactly 4 polls, got server=%d result=%d", atomic.LoadInt32(&fake.polls), transcript.Polls)
	}
	if len(recorder.delays) != 4 {
		t.Fatalf("expected one interval before each poll, got %v", recorder.delays)
	}
	for _, delay := range recorder.delays {
		if delay != 5*time.Second {
			t.Fatalf("expected fixed 5s interval, got %v", recorder.delays)
		}
	}
	if transcript.Text != "hello there" || transcript.Duration != 12.5 || len(transcript.Words) != 2 {
		t.Fatalf("unexpected transcript %+v", transcript)
	}
	if fake.submit["audio_url"] != "https://cdn.example/audio.mp3" || fake.submit["language_detection"] != true {
		t.Fatalf("unexpected submit payload %v", fake.submit)
	}
}

func TestTranscribeTimesOutAfterPollBudget(t *testing.T) {
	fake := &fakeAssemblyAI{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	recorder := &sleepRecorder{}
	_, err := newPoller(server.URL, recorder).Transcribe(context.Background(), "https://cdn.example/audio.mp3")
	if domain.KindOf(err) != domain.KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if domain.KindOf(err) == domain.KindProvider {
		t.Fatalf("timeout must not be reported as provider error")
	}
	if atomic.LoadInt32(&fake.polls) != 60 {
		t.Fatalf("expected 60 polls, got %d", atomic.LoadInt32(&fake.polls))
	}
}

func TestTranscribeSurfacesProviderError(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{"processing", "error"}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	_, err := newPoller(server.URL, &sleepRecorder{}).Transcribe(context.Background(), "https://cdn.example/audio.mp3")
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) || domainErr.Kind != domain.KindProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !strings.Contains(domainErr.Message, "audio file is corrupt") {
		t.Fatalf("expected provider message, got %q", domainErr.Message)
	}
	if atomic.LoadInt32(&fake.polls) != 2 {
		t.Fatalf("expected polling to stop at the error status, got %d polls", atomic.LoadInt32(&fake.polls))
	}
}

func TestTranscribeCountsTransientPollFailures(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{"unavailable", "completed"}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	transcript, err := newPoller(server.URL, &sleepRecorder{}).Transcribe(context.Background(), "https://cdn.example/audio.mp3")
	if err != nil {
		t.Fatalf("expected recovery after transient poll failure, got %v", err)
	}
	if transcript.Polls != 2 {
		t.Fatalf("expected failed poll to count against the budget, got %d", transcript.Polls)
	}
}

func TestSubmitRejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Authentication error"}`))
	}))
	defer server.Close()

	recorder := &sleepRecorder{}
	_, err := newPoller(server.URL, recorder).Transcribe(context.Background(), "https://cdn.example/audio.mp3")
	if domain.KindOf(err) != domain.KindClient {
		t.Fatalf("expected client error, got %v", err)
	}
	if len(recorder.delays) != 0 {
		t.Fatalf("expected no polling after a rejected submit")
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	client := NewAssemblyAIClient(AssemblyAIConfig{})
	_, err := client.Transcribe(context.Background(), "https://cdn.example/audio.mp3")
	if domain.KindOf(err) != domain.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
