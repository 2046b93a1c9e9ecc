package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iago/studyhub-back/internal/ai"
	"github.com/iago/studyhub-back/internal/cache"
	"github.com/iago/studyhub-back/internal/http/handlers"
	"github.com/iago/studyhub-back/internal/logging"
	"github.com/iago/studyhub-back/internal/queue"
	"github.com/iago/studyhub-back/internal/repository"
	"github.com/iago/studyhub-back/internal/service"
	"github.com/iago/studyhub-back/internal/transcription"
	"github.com/iago/studyhub-back/internal/worker"
)

const (
	summaryReply = `{"title":"Photosynthesis","sections":[{"title":"Light reactions","content":"Happen in thylakoids.","bulletPoints":["ATP","NADPH"]}]}`
	quizReply    = `[{"id":"q1","type":"true-false","question":"Plants need light.","correctAnswer":"True"}]`
)

func noSleep(context.Context, time.Duration) error { return nil }

// newFakeGemini answers generateContent with a summary or quiz depending on
// the prompt and streamGenerateContent with two cumulative chunks.
func newFakeGemini(t *testing.T, generateStatus *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case strings.HasSuffix(r.URL.Path, ":streamGenerateContent"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, "[{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Chloro\"}]}}]}\n")
			_, _ = io.WriteString(w, ",{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Chlorophyll.\"}]}}]}\n]")
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			if generateStatus != nil && *generateStatus != http.StatusOK {
				w.WriteHeader(*generateStatus)
				_, _ = io.WriteString(w, `{"error":"upstream"}`)
				return
			}
			text := summaryReply
			if bytes.Contains(body, []byte("questions")) {
				text = quizReply
			}
			encoded, _ := json.Marshal(text)
			_, _ = fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%s}]}}],"modelVersion":"fake-model"}`, encoded)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newFakeAssemblyAI(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/transcript":
			_, _ = io.WriteString(w, `{"id":"tx-1","status":"queued"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v2/transcript/tx-1":
			_, _ = io.WriteString(w, `{"id":"tx-1","status":"completed","text":"hello class","words":[],"audio_duration":3.5}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

type testRuntime struct {
	server *httptest.Server
	close  func()
}

func startRuntime(t *testing.T, generateStatus *int) testRuntime {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := logging.Nop()

	gemini := newFakeGemini(t, generateStatus)
	assembly := newFakeAssemblyAI(t)

	jobsRepo := repository.NewMemoryJobsRepository()
	library := repository.NewMemoryLibraryRepository()
	localQueue := queue.NewLocalQueue(64, 3, logger)

	generator := ai.NewGeminiClient(ai.GeminiClientConfig{
		APIKey:  "test-key",
		BaseURL: gemini.URL,
		Sleep:   noSleep,
		Logger:  logger,
	})
	processing, err := service.NewProcessingService(service.ProcessingDependencies{
		Generator: generator,
		Cache:     cache.NewResultCache(cache.Config{TTL: time.Minute}),
		Files:     library,
		Chats:     library,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("processing service: %v", err)
	}
	jobs := service.NewJobsService(service.JobsDependencies{Repo: jobsRepo, Files: library, Producer: localQueue})
	api := handlers.NewAPI(handlers.APIDependencies{
		Processing: processing,
		Jobs:       jobs,
		Library:    service.NewLibraryService(library, library),
		Logger:     logger,
	})
	router := NewRouter(RouterDependencies{
		API:            api,
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Consumer: localQueue,
		Jobs:     jobsRepo,
		Files:    library,
		Transcriber: transcription.NewAssemblyAIClient(transcription.AssemblyAIConfig{
			APIKey:  "test-key",
			BaseURL: assembly.URL,
			Sleep:   noSleep,
			Logger:  logger,
		}),
		MaxAttempts: 3,
		Logger:      logger,
	})
	go func() { _ = processor.Start(ctx) }()

	server := httptest.NewServer(router)
	return testRuntime{
		server: server,
		close: func() {
			cancel()
			server.Close()
			gemini.Close()
			assembly.Close()
		},
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, payload any) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-User-Id", "student-1")

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(response.Body)
	if len(raw) == 0 {
		return response.StatusCode, map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response body (%d): %s", response.StatusCode, string(raw))
	}
	return response.StatusCode, decoded
}

func waitForJobDone(t *testing.T, client *http.Client, baseURL, jobID string, timeout time.Duration) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, body := doJSON(t, client, http.MethodGet, baseURL+"/v1/jobs/"+jobID, nil)
		if status == http.StatusOK {
			switch body["status"] {
			case "done":
				return body
			case "failed":
				t.Fatalf("job %s failed: %+v", jobID, body)
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for job %s to reach done", jobID)
	return nil
}

func TestStudyFlowSummaryQuizChat(t *testing.T) {
	runtime := startRuntime(t, nil)
	defer runtime.close()
	client := runtime.server.Client()
	baseURL := runtime.server.URL

	status, file := doJSON(t, client, http.MethodPost, baseURL+"/v1/files", map[string]any{"name": "bio.pdf", "type": "pdf"})
	if status != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %+v", http.StatusCreated, status, file)
	}
	fileID, _ := file["id"].(string)

	status, summary := doJSON(t, client, http.MethodPost, baseURL+"/v1/summaries", map[string]any{
		"text":   "Photosynthesis converts light into chemical energy.",
		"fileId": fileID,
	})
	if status != http.StatusOK {
		t.Fatalf("expected summary status 200, got %d: %+v", status, summary)
	}
	if summary["degraded"] != false {
		t.Fatalf("expected parsed summary, got %+v", summary)
	}

	status, quiz := doJSON(t, client, http.MethodPost, baseURL+"/v1/quizzes", map[string]any{
		"text":   "Photosynthesis converts light into chemical energy.",
		"fileId": fileID,
	})
	if status != http.StatusOK {
		t.Fatalf("expected quiz status 200, got %d: %+v", status, quiz)
	}
	questions, _ := quiz["questions"].([]any)
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %+v", quiz)
	}

	status, graded := doJSON(t, client, http.MethodPost, baseURL+"/v1/quizzes/grade", map[string]any{
		"questions": questions,
		"answers":   map[string]string{"q1": "true"},
	})
	if status != http.StatusOK || graded["score"] != float64(1) {
		t.Fatalf("expected score 1, got %d %+v", status, graded)
	}

	chatBody, _ := json.Marshal(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "What absorbs light?"}},
		"fileId":   fileID,
	})
	request, _ := http.NewRequest(http.MethodPost, baseURL+"/v1/chat", bytes.NewReader(chatBody))
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-User-Id", "student-1")
	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	raw, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if got := response.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", got)
	}
	stream := string(raw)
	if !strings.Contains(stream, `"content":"Chloro"`) || !strings.Contains(stream, `"content":"phyll."`) {
		t.Fatalf("expected two deltas, got %s", stream)
	}
	if !strings.HasSuffix(stream, "data: [DONE]\n\n") {
		t.Fatalf("expected done marker at end, got %s", stream)
	}

	status, messages := doJSON(t, client, http.MethodGet, baseURL+"/v1/files/"+fileID+"/messages", nil)
	if status != http.StatusOK {
		t.Fatalf("expected messages status 200, got %d", status)
	}
	if list, _ := messages["messages"].([]any); len(list) != 2 {
		t.Fatalf("expected stored exchange, got %+v", messages)
	}

	status, stored := doJSON(t, client, http.MethodGet, baseURL+"/v1/files/"+fileID, nil)
	if status != http.StatusOK || stored["summary"] == nil || stored["quiz"] == nil {
		t.Fatalf("expected stored summary and quiz, got %d %+v", status, stored)
	}
}

func TestAudioTranscriptionJob(t *testing.T) {
	runtime := startRuntime(t, nil)
	defer runtime.close()
	client := runtime.server.Client()
	baseURL := runtime.server.URL

	_, file := doJSON(t, client, http.MethodPost, baseURL+"/v1/files", map[string]any{"name": "lecture.mp3", "type": "audio"})
	fileID, _ := file["id"].(string)

	status, accepted := doJSON(t, client, http.MethodPost, baseURL+"/v1/transcriptions/audio", map[string]any{
		"audioUrl": "https://cdn.example/lecture.mp3",
		"fileId":   fileID,
	})
	if status != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %+v", http.StatusAccepted, status, accepted)
	}
	jobID, _ := accepted["job_id"].(string)
	if accepted["status_url"] != "/v1/jobs/"+jobID {
		t.Fatalf("expected status url, got %+v", accepted)
	}

	job := waitForJobDone(t, client, baseURL, jobID, 5*time.Second)
	result, _ := job["result"].(map[string]any)
	if result["transcript"] != "hello class" {
		t.Fatalf("expected transcript result, got %+v", job)
	}

	_, stored := doJSON(t, client, http.MethodGet, baseURL+"/v1/files/"+fileID, nil)
	if stored["transcript"] != "hello class" {
		t.Fatalf("expected transcript stored on file, got %+v", stored)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	rateLimited := http.StatusTooManyRequests
	runtime := startRuntime(t, &rateLimited)
	defer runtime.close()
	client := runtime.server.Client()
	baseURL := runtime.server.URL

	status, body := doJSON(t, client, http.MethodPost, baseURL+"/v1/summaries", map[string]any{"text": "x"})
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, status)
	}
	envelope, _ := body["error"].(map[string]any)
	if envelope["code"] != "rate_limited" || envelope["message"] != "Rate limit exceeded. Please try again in a few moments." {
		t.Fatalf("unexpected error envelope: %+v", body)
	}
	if body["request_id"] == "" {
		t.Fatalf("expected request id in error body")
	}

	status, body = doJSON(t, client, http.MethodPost, baseURL+"/v1/summaries", map[string]any{"text": ""})
	if status != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %+v", http.StatusBadRequest, status, body)
	}

	status, _ = doJSON(t, client, http.MethodGet, baseURL+"/v1/jobs/missing", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, status)
	}

	status, body = doJSON(t, client, http.MethodPost, baseURL+"/v1/transcriptions/youtube", map[string]any{"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ"})
	envelope, _ = body["error"].(map[string]any)
	if status != http.StatusInternalServerError || envelope["code"] != "configuration_error" {
		t.Fatalf("expected configuration error, got %d %+v", status, body)
	}
}

func TestHealthAndMetricsBypassAuth(t *testing.T) {
	router := NewRouter(RouterDependencies{
		API:       handlers.NewAPI(handlers.APIDependencies{}),
		AuthToken: "secret",
	})

	for _, path := range []string{"/healthz", "/metrics"} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected %s status 200, got %d", path, recorder.Code)
		}
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/files", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, recorder.Code)
	}
}
