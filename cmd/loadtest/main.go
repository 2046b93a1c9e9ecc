// Command loadtest runs the HTTP API in process against a stub provider and
// reports latency percentiles per endpoint.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iago/studyhub-back/internal/ai"
	"github.com/iago/studyhub-back/internal/cache"
	httpserver "github.com/iago/studyhub-back/internal/http"
	"github.com/iago/studyhub-back/internal/http/handlers"
	"github.com/iago/studyhub-back/internal/logging"
	"github.com/iago/studyhub-back/internal/queue"
	"github.com/iago/studyhub-back/internal/repository"
	"github.com/iago/studyhub-back/internal/service"
	"github.com/iago/studyhub-back/internal/transcription"
	"github.com/iago/studyhub-back/internal/worker"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type cacheResult struct {
	Requests     int     `json:"requests"`
	Hits         int64   `json:"hits"`
	HitRatio     float64 `json:"hit_ratio"`
	DistinctDocs int     `json:"distinct_documents"`
}

type runResult struct {
	GeneratedAtUTC  string           `json:"generated_at_utc"`
	Environment     string           `json:"environment"`
	ProviderDelayMS int              `json:"provider_delay_ms"`
	Results         []scenarioResult `json:"results"`
	SummaryCache    cacheResult      `json:"summary_cache"`
	SLOEvaluation   map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server   *httptest.Server
	provider *httptest.Server
	cancel   context.CancelFunc
}

func main() {
	summariesTotal := flag.Int("summaries-total", 240, "total summary requests")
	summariesConcurrency := flag.Int("summaries-concurrency", 24, "concurrency for summary requests")
	distinctDocs := flag.Int("distinct-documents", 20, "distinct documents cycled by summary requests")
	quizzesTotal := flag.Int("quizzes-total", 120, "total quiz requests")
	quizzesConcurrency := flag.Int("quizzes-concurrency", 16, "concurrency for quiz requests")
	chatTotal := flag.Int("chat-total", 120, "total chat stream requests")
	chatConcurrency := flag.Int("chat-concurrency", 16, "concurrency for chat stream requests")
	audioTotal := flag.Int("audio-total", 80, "total audio transcription enqueue requests")
	audioConcurrency := flag.Int("audio-concurrency", 16, "concurrency for audio enqueue requests")
	providerDelay := flag.Duration("provider-delay", 40*time.Millisecond, "simulated provider latency")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env := startBenchmarkEnvironment(*providerDelay)
	defer env.close()

	client := &http.Client{Timeout: 30 * time.Second}
	var cacheHits int64

	if *distinctDocs <= 0 {
		*distinctDocs = 1
	}
	summariesScenario := runScenario("summaries", *summariesTotal, *summariesConcurrency, func(index int) error {
		payload := map[string]any{
			"text": fmt.Sprintf("Lecture %d: the mitochondria is the powerhouse of the cell.", index%*distinctDocs),
		}
		body, err := postJSON(client, env.server.URL+"/v1/summaries", payload, http.StatusOK)
		if err != nil {
			return err
		}
		var decoded struct {
			Cached bool `json:"cached"`
		}
		if json.Unmarshal(body, &decoded) == nil && decoded.Cached {
			atomic.AddInt64(&cacheHits, 1)
		}
		return nil
	})

	quizzesScenario := runScenario("quizzes", *quizzesTotal, *quizzesConcurrency, func(index int) error {
		payload := map[string]any{"text": fmt.Sprintf("Chapter %d covers photosynthesis and respiration.", index)}
		_, err := postJSON(client, env.server.URL+"/v1/quizzes", payload, http.StatusOK)
		return err
	})

	chatScenario := runScenario("chat_stream", *chatTotal, *chatConcurrency, func(index int) error {
		payload := map[string]any{
			"messages": []map[string]string{{"role": "user", "content": fmt.Sprintf("Question %d about cells?", index)}},
			"context":  "Cells are the basic unit of life.",
		}
		body, err := postJSON(client, env.server.URL+"/v1/chat", payload, http.StatusOK)
		if err != nil {
			return err
		}
		if !bytes.HasSuffix(body, []byte("data: [DONE]\n\n")) {
			return fmt.Errorf("stream ended without done marker")
		}
		return nil
	})

	audioScenario := runScenario("audio_enqueue", *audioTotal, *audioConcurrency, func(index int) error {
		payload := map[string]any{"audioUrl": fmt.Sprintf("https://cdn.example/lecture-%d.mp3", index)}
		_, err := postJSON(client, env.server.URL+"/v1/transcriptions/audio", payload, http.StatusAccepted)
		return err
	})

	results := []scenarioResult{summariesScenario, quizzesScenario, chatScenario, audioScenario}
	summaryCache := cacheResult{
		Requests:     *summariesTotal,
		Hits:         cacheHits,
		DistinctDocs: *distinctDocs,
	}
	if *summariesTotal > 0 {
		summaryCache.HitRatio = round2(float64(cacheHits) / float64(*summariesTotal))
	}

	slo := map[string]bool{
		"summary_endpoint_p95_le_5000ms": summariesScenario.P95MS <= 5000,
		"chat_stream_p95_le_5000ms":      chatScenario.P95MS <= 5000,
		"audio_enqueue_p95_le_500ms":     audioScenario.P95MS <= 500,
	}

	report := runResult{
		GeneratedAtUTC:  time.Now().UTC().Format(time.RFC3339Nano),
		Environment:     "local-httptest",
		ProviderDelayMS: int(providerDelay.Milliseconds()),
		Results:         results,
		SummaryCache:    summaryCache,
		SLOEvaluation:   slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal benchmark report: %v\n", err)
		os.Exit(1)
	}
	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output file: %v\n", err)
			os.Exit(1)
		}
	}
	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

// stubProvider imitates the generation and transcription upstreams with a
// fixed delay per call.
func stubProvider(delay time.Duration) *httptest.Server {
	const summary = `{"title":"Cells","sections":[{"title":"Organelles","content":"Mitochondria make ATP.","bulletPoints":["ATP"]}]}`
	const quiz = `[{"type":"true-false","question":"Mitochondria make ATP.","correctAnswer":"True"}]`

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, ":streamGenerateContent"):
			for _, text := range []string{"Mito", "Mitochondria", "Mitochondria make ATP."} {
				_, _ = fmt.Fprintf(w, "{\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n", text)
			}
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			text := summary
			if bytes.Contains(body, []byte("questions")) {
				text = quiz
			}
			encoded, _ := json.Marshal(text)
			_, _ = fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%s}]}}]}`, encoded)
		case r.Method == http.MethodPost && r.URL.Path == "/v2/transcript":
			_, _ = io.WriteString(w, `{"id":"bench","status":"queued"}`)
		case strings.HasPrefix(r.URL.Path, "/v2/transcript/"):
			_, _ = io.WriteString(w, `{"id":"bench","status":"completed","text":"benchmark transcript","words":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func startBenchmarkEnvironment(delay time.Duration) *benchmarkEnv {
	ctx, cancel := context.WithCancel(context.Background())
	logger := logging.Nop()
	noSleep := func(context.Context, time.Duration) error { return nil }

	provider := stubProvider(delay)
	jobsRepo := repository.NewMemoryJobsRepository()
	library := repository.NewMemoryLibraryRepository()
	localQueue := queue.NewLocalQueue(4096, 3, logger)

	processing, err := service.NewProcessingService(service.ProcessingDependencies{
		Generator: ai.NewGeminiClient(ai.GeminiClientConfig{
			APIKey:  "bench",
			BaseURL: provider.URL,
			Sleep:   noSleep,
			Logger:  logger,
		}),
		Cache:  cache.NewResultCache(cache.Config{TTL: 10 * time.Minute, MaxEntries: 4000}),
		Files:  library,
		Chats:  library,
		Logger: logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start benchmark environment: %v\n", err)
		os.Exit(1)
	}

	api := handlers.NewAPI(handlers.APIDependencies{
		Processing: processing,
		Jobs:       service.NewJobsService(service.JobsDependencies{Repo: jobsRepo, Files: library, Producer: localQueue}),
		Library:    service.NewLibraryService(library, library),
		Logger:     logger,
	})
	router := httpserver.NewRouter(httpserver.RouterDependencies{
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
			APIKey:  "bench",
			BaseURL: provider.URL,
			Sleep:   noSleep,
			Logger:  logger,
		}),
		Logger: logger,
	})
	go func() { _ = processor.Start(ctx) }()

	return &benchmarkEnv{
		server:   httptest.NewServer(router),
		provider: provider,
		cancel:   cancel,
	}
}

func (e *benchmarkEnv) close() {
	e.cancel()
	e.server.Close()
	e.provider.Close()
}

func runScenario(name string, total, concurrency int, requestFn func(index int) error) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	throughput := 0.0
	if elapsed := time.Since(startedAt).Seconds(); elapsed > 0 {
		throughput = float64(total) / elapsed
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        total - success,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(client *http.Client, url string, payload any, expectedStatus int) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-User-Id", "loadtest")

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if response.StatusCode != expectedStatus {
		if len(body) > 1024 {
			body = body[:1024]
		}
		return nil, fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	return body, nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
