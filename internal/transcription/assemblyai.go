package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iago/studyhub-back/internal/ai"
	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	providerAssemblyAI          = "assemblyai"
	defaultAssemblyAIURL        = "https://api.assemblyai.com"
	defaultPollInterval         = 5 * time.Second
	defaultMaxPolls             = 60
	MessageTranscriptionTimeout = "Transcription timed out"
)

type AssemblyAIConfig struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	MaxPolls     int
	Timeout      time.Duration
	HTTPClient   *http.Client
	Sleep        ai.Sleeper
	Logger       *zerolog.Logger
}

// AssemblyAIClient submits audio for transcription and polls the job until
// it completes, fails or the poll budget runs out.
type AssemblyAIClient struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	maxPolls     int
	timeout      time.Duration
	httpClient   *http.Client
	sleep        ai.Sleeper
	logger       *zerolog.Logger
}

func NewAssemblyAIClient(config AssemblyAIConfig) *AssemblyAIClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = defaultAssemblyAIURL
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.MaxPolls <= 0 {
		config.MaxPolls = defaultMaxPolls
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Sleep == nil {
		config.Sleep = ai.SleepContext
	}
	if config.Logger == nil {
		nop := zerolog.Nop()
		config.Logger = &nop
	}
	return &AssemblyAIClient{
		apiKey:       strings.TrimSpace(config.APIKey),
		baseURL:      strings.TrimSuffix(config.BaseURL, "/"),
		pollInterval: config.PollInterval,
		maxPolls:     config.MaxPolls,
		timeout:      config.Timeout,
		httpClient:   config.HTTPClient,
		sleep:        config.Sleep,
		logger:       config.Logger,
	}
}

func (c *AssemblyAIClient) Available() bool {
	return c.apiKey != ""
}

type submitRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageDetection bool   `json:"language_detection"`
}

// JobStatus is one poll result.
type JobStatus struct {
	ID            string                  `json:"id"`
	Status        domain.TranscriptStatus `json:"status"`
	Text          string                  `json:"text"`
	Words         []domain.TranscriptWord `json:"words"`
	AudioDuration float64                 `json:"audio_duration"`
	Error         string                  `json:"error"`
}

// Transcribe runs submit and the poll loop. Every poll is preceded by one
// interval sleep.
func (c *AssemblyAIClient) Transcribe(ctx context.Context, audioURL string) (domain.Transcript, error) {
	jobID, err := c.Submit(ctx, audioURL)
	if err != nil {
		return domain.Transcript{}, err
	}
	c.logger.Info().Str("provider_job_id", jobID).Msg("transcription started")

	polls := 0
	for polls < c.maxPolls {
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return domain.Transcript{}, err
		}
		polls++

		status, err := c.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Transcript{}, ctx.Err()
			}
			if domain.KindOf(err) == domain.KindTransient {
				c.logger.Warn().Err(err).Int("poll", polls).Msg("transcription poll failed, will retry")
				continue
			}
			metrics.TranscriptionPolls("poll_error", polls)
			return domain.Transcript{}, err
		}

		switch status.Status {
		case domain.TranscriptCompleted:
			metrics.TranscriptionPolls("completed", polls)
			return domain.Transcript{
				ProviderJobID: jobID,
				Text:          status.Text,
				Words:         status.Words,
				Duration:      status.AudioDuration,
				Polls:         polls,
			}, nil
		case domain.TranscriptError:
			metrics.TranscriptionPolls("error", polls)
			return domain.Transcript{}, &domain.Error{
				Kind:    domain.KindProvider,
				Message: "Transcription failed: " + status.Error,
			}
		default:
			c.logger.Debug().Str("status", string(status.Status)).Int("poll", polls).Msg("transcription status")
		}
	}

	metrics.TranscriptionPolls("timeout", polls)
	return domain.Transcript{}, domain.NewError(domain.KindTimeout, MessageTranscriptionTimeout)
}

func (c *AssemblyAIClient) Submit(ctx context.Context, audioURL string) (string, error) {
	if !c.Available() {
		return "", domain.ConfigurationError("ASSEMBLYAI_API_KEY")
	}
	if strings.TrimSpace(audioURL) == "" {
		return "", domain.InvalidInput("audioUrl is required")
	}

	payload, err := json.Marshal(submitRequest{AudioURL: audioURL, LanguageDetection: true})
	if err != nil {
		return "", fmt.Errorf("marshal transcription request: %w", err)
	}

	var created JobStatus
	status, body, err := c.do(ctx, http.MethodPost, "/v2/transcript", payload, &created)
	if err != nil {
		return "", domain.WrapError(domain.KindUpstream, "Failed to start transcription", err)
	}
	if status < 200 || status > 299 {
		c.logger.Error().Int("status", status).Str("body", body).Msg("transcription submit rejected")
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return "", &domain.Error{Kind: domain.KindClient, Message: domain.MessageInvalidRequest, Status: status, Body: body}
		}
		return "", &domain.Error{Kind: domain.KindUpstream, Message: "Failed to start transcription", Status: status, Body: body}
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", domain.NewError(domain.KindUpstream, "Failed to start transcription: missing job id")
	}
	return created.ID, nil
}

func (c *AssemblyAIClient) Status(ctx context.Context, jobID string) (JobStatus, error) {
	var current JobStatus
	status, body, err := c.do(ctx, http.MethodGet, "/v2/transcript/"+jobID, nil, &current)
	if err != nil {
		return JobStatus{}, domain.WrapError(domain.KindTransient, "transcription status unavailable", err)
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return JobStatus{}, &domain.Error{Kind: domain.KindTransient, Message: "transcription status unavailable", Status: status, Body: body}
	}
	if status < 200 || status > 299 {
		return JobStatus{}, &domain.Error{Kind: domain.KindUpstream, Message: "transcription status request failed", Status: status, Body: body}
	}
	return current, nil
}

// do performs one request and decodes a 2xx body into out. Non-2xx bodies
// are returned as trimmed text.
func (c *AssemblyAIClient) do(
	ctx context.Context,
	method string,
	path string,
	payload []byte,
	out any,
) (int, string, error) {
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpRequest, err := http.NewRequestWithContext(requestCtx, method, c.baseURL+path, body)
	if err != nil {
		return 0, "", fmt.Errorf("create assemblyai request: %w", err)
	}
	httpRequest.Header.Set("Authorization", c.apiKey)
	if payload != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		metrics.ProviderAttempt(providerAssemblyAI, 0)
		return 0, "", fmt.Errorf("assemblyai transport error: %w", err)
	}
	defer httpResponse.Body.Close()
	metrics.ProviderAttempt(providerAssemblyAI, httpResponse.StatusCode)

	raw, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return httpResponse.StatusCode, "", fmt.Errorf("read assemblyai body: %w", err)
	}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		return httpResponse.StatusCode, trimBody(raw), nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return httpResponse.StatusCode, "", fmt.Errorf("decode assemblyai response: %w", err)
	}
	return httpResponse.StatusCode, "", nil
}

func trimBody(raw []byte) string {
	message := strings.TrimSpace(string(raw))
	if len(message) > 700 {
		message = message[:700]
	}
	return message
}
