package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const (
	providerGemini       = "gemini"
	DefaultGeminiModel   = "gemini-2.5-flash-lite"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	maxErrorBodyLength   = 700
)

type GeminiClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
	Sleep      Sleeper
	Logger     *zerolog.Logger
}

// GeminiClient talks to the generateContent and streamGenerateContent
// endpoints. Each call runs its own retry loop; attempts never overlap.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	retry      RetryPolicy
	httpClient *http.Client
	sleep      Sleeper
	logger     *zerolog.Logger
}

func NewGeminiClient(config GeminiClientConfig) *GeminiClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = defaultGeminiBaseURL
	}
	if strings.TrimSpace(config.Model) == "" {
		config.Model = DefaultGeminiModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Retry == (RetryPolicy{}) {
		config.Retry = DefaultRetryPolicy()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Sleep == nil {
		config.Sleep = SleepContext
	}
	if config.Logger == nil {
		nop := zerolog.Nop()
		config.Logger = &nop
	}

	return &GeminiClient{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		model:      strings.TrimSpace(config.Model),
		timeout:    config.Timeout,
		retry:      config.Retry,
		httpClient: config.HTTPClient,
		sleep:      config.Sleep,
		logger:     config.Logger,
	}
}

func (c *GeminiClient) Available() bool {
	return c.apiKey != ""
}

func (c *GeminiClient) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	if !c.Available() {
		return GenerateResult{}, domain.ConfigurationError("GEMINI_API_KEY")
	}
	model := providerFirstNonEmpty(request.Model, c.model)
	payload, err := encodeGenerateRequest(request)
	if err != nil {
		return GenerateResult{}, err
	}

	started := time.Now()
	response, attempts, err := c.post(ctx, c.endpoint(model, "generateContent"), payload, c.timeout)
	metrics.ObserveProviderCall(providerGemini, time.Since(started), err == nil)
	if err != nil {
		return GenerateResult{}, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return GenerateResult{}, domain.WrapError(domain.KindUpstream, "read AI provider response", err)
	}

	var decoded genai.GenerateContentResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return GenerateResult{}, domain.WrapError(domain.KindUpstream, "decode AI provider response", err)
	}
	text := firstCandidateText(&decoded)
	if strings.TrimSpace(text) == "" {
		return GenerateResult{}, domain.NewError(domain.KindUpstream, "AI provider returned no text")
	}

	result := GenerateResult{
		Text:     text,
		ModelID:  providerFirstNonEmpty(decoded.ModelVersion, model),
		Attempts: attempts,
	}
	if decoded.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  int(decoded.UsageMetadata.PromptTokenCount),
			OutputTokens: int(decoded.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(decoded.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

func (c *GeminiClient) Stream(ctx context.Context, request GenerateRequest) (io.ReadCloser, error) {
	if !c.Available() {
		return nil, domain.ConfigurationError("GEMINI_API_KEY")
	}
	model := providerFirstNonEmpty(request.Model, c.model)
	payload, err := encodeGenerateRequest(request)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	response, _, err := c.post(ctx, c.endpoint(model, "streamGenerateContent"), payload, 0)
	metrics.ObserveProviderCall(providerGemini, time.Since(started), err == nil)
	if err != nil {
		return nil, err
	}
	return response.Body, nil
}

func (c *GeminiClient) endpoint(model, method string) string {
	return fmt.Sprintf("%s/models/%s:%s", c.baseURL, model, method)
}

// post runs the retry loop. On success the caller owns the response body.
// On failure the returned error is a *domain.Error carrying the last
// observed status and body text.
func (c *GeminiClient) post(
	ctx context.Context,
	url string,
	payload []byte,
	timeout time.Duration,
) (*http.Response, int, error) {
	var lastErr *domain.Error
	attempts := 0
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retry.Delay(attempt)
			c.logger.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Int("last_status", lastErr.Status).
				Msg("retrying AI provider call")
			metrics.ProviderRetryDelay(providerGemini, delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, attempts, err
			}
		}

		attempts++
		response, err := c.send(ctx, url, payload, timeout)
		if err != nil {
			metrics.ProviderAttempt(providerGemini, 0)
			if ctx.Err() != nil {
				return nil, attempts, ctx.Err()
			}
			return nil, attempts, domain.WrapError(domain.KindUpstream, "AI provider unreachable", err)
		}
		metrics.ProviderAttempt(providerGemini, response.StatusCode)

		if response.StatusCode >= 200 && response.StatusCode <= 299 {
			return response, attempts, nil
		}

		body, _ := io.ReadAll(io.LimitReader(response.Body, 64*1024))
		response.Body.Close()
		lastErr = StatusError(response.StatusCode, string(body))
		c.logger.Error().
			Int("status", response.StatusCode).
			Int("attempt", attempts).
			Int("max_attempts", c.retry.MaxRetries+1).
			Str("body", lastErr.Body).
			Msg("AI provider error")

		if !Retryable(response.StatusCode) {
			break
		}
	}
	return nil, attempts, lastErr
}

func (c *GeminiClient) send(
	ctx context.Context,
	url string,
	payload []byte,
	timeout time.Duration,
) (*http.Response, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	httpRequest, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create gemini request: %w", err)
	}
	httpRequest.Header.Set("x-goog-api-key", c.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gemini transport error: %w", err)
	}
	response.Body = &cancelOnClose{ReadCloser: response.Body, cancel: cancel}
	return response, nil
}

// StatusError classifies a non-2xx upstream status into the error taxonomy.
func StatusError(status int, body string) *domain.Error {
	message := strings.TrimSpace(body)
	if len(message) > maxErrorBodyLength {
		message = message[:maxErrorBodyLength]
	}

	err := &domain.Error{Status: status, Body: message}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		err.Kind = domain.KindClient
		err.Message = domain.MessageInvalidRequest
	case status == http.StatusTooManyRequests:
		err.Kind = domain.KindRateLimit
		err.Message = domain.MessageRateLimited
	case status >= 500:
		err.Kind = domain.KindTransient
		err.Message = fmt.Sprintf("AI provider error: status %d", status)
	default:
		err.Kind = domain.KindUpstream
		err.Message = fmt.Sprintf("AI provider error: status %d", status)
	}
	return err
}

type generateContentRequest struct {
	Contents          []*genai.Content  `json:"contents"`
	SystemInstruction *genai.Content    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

func encodeGenerateRequest(request GenerateRequest) ([]byte, error) {
	if len(request.Contents) == 0 {
		return nil, domain.InvalidInput("at least one message is required")
	}

	payload := generateContentRequest{
		Contents: make([]*genai.Content, 0, len(request.Contents)),
	}
	for _, message := range request.Contents {
		role := genai.RoleUser
		if message.Role == "model" {
			role = genai.RoleModel
		}
		payload.Contents = append(payload.Contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: message.Text}},
		})
	}
	if strings.TrimSpace(request.SystemInstruction) != "" {
		payload.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: request.SystemInstruction}},
		}
	}
	if request.Temperature > 0 || request.MaxOutputTokens > 0 {
		config := &generationConfig{MaxOutputTokens: request.MaxOutputTokens}
		if request.Temperature > 0 {
			temperature := request.Temperature
			config.Temperature = &temperature
		}
		payload.GenerationConfig = config
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini payload: %w", err)
	}
	return encoded, nil
}

func firstCandidateText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 {
		return ""
	}
	candidate := response.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}
	if candidate.Content.Parts[0] == nil {
		return ""
	}
	return candidate.Content.Parts[0].Text
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

func providerFirstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
