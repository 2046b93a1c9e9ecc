package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/metrics"
)

const (
	providerTranscriptAPI    = "transcriptapi"
	defaultTranscriptAPIURL  = "https://api.transcriptapi.io"
	MessageNoVideoTranscript = "No transcript available for this video"
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([^&\n?#]+)`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]{11})$`),
}

// ExtractVideoID accepts watch, short and embed URLs or a bare video id.
func ExtractVideoID(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(trimmed); len(match) > 1 {
			return match[1], true
		}
	}
	return "", false
}

type CaptionsConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// CaptionsClient fetches existing captions for a video.
type CaptionsClient struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewCaptionsClient(config CaptionsConfig) *CaptionsClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = defaultTranscriptAPIURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &CaptionsClient{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
	}
}

func (c *CaptionsClient) Available() bool {
	return c.apiKey != ""
}

type captionsResponse struct {
	Transcript json.RawMessage `json:"transcript"`
	Text       string          `json:"text"`
}

func (c *CaptionsClient) Fetch(ctx context.Context, videoURL string) (domain.VideoTranscript, error) {
	if strings.TrimSpace(videoURL) == "" {
		return domain.VideoTranscript{}, domain.InvalidInput("No YouTube URL provided")
	}
	if !c.Available() {
		return domain.VideoTranscript{}, domain.ConfigurationError("TRANSCRIPT_API_KEY")
	}
	videoID, ok := ExtractVideoID(videoURL)
	if !ok {
		return domain.VideoTranscript{}, domain.InvalidInput("Invalid YouTube URL")
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/v1/transcript?video_id=" + url.QueryEscape(videoID)
	httpRequest, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.VideoTranscript{}, fmt.Errorf("create transcript request: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		metrics.ProviderAttempt(providerTranscriptAPI, 0)
		return domain.VideoTranscript{}, domain.WrapError(domain.KindUpstream, "Failed to fetch transcript", err)
	}
	defer httpResponse.Body.Close()
	metrics.ProviderAttempt(providerTranscriptAPI, httpResponse.StatusCode)

	raw, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return domain.VideoTranscript{}, domain.WrapError(domain.KindUpstream, "Failed to fetch transcript", err)
	}
	switch {
	case httpResponse.StatusCode == http.StatusNotFound:
		return domain.VideoTranscript{}, &domain.Error{
			Kind:    domain.KindProvider,
			Message: MessageNoVideoTranscript,
			Status:  httpResponse.StatusCode,
			Body:    trimBody(raw),
		}
	case httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299:
		return domain.VideoTranscript{}, &domain.Error{
			Kind:    domain.KindUpstream,
			Message: "Failed to fetch transcript",
			Status:  httpResponse.StatusCode,
			Body:    trimBody(raw),
		}
	}

	var decoded captionsResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.VideoTranscript{}, domain.WrapError(domain.KindUpstream, "decode transcript response", err)
	}

	result := domain.VideoTranscript{VideoID: videoID, Segments: []domain.CaptionSegment{}}
	var segments []domain.CaptionSegment
	if len(decoded.Transcript) > 0 && json.Unmarshal(decoded.Transcript, &segments) == nil && segments != nil {
		texts := make([]string, 0, len(segments))
		for _, segment := range segments {
			texts = append(texts, segment.Text)
		}
		result.Transcript = strings.Join(texts, " ")
		result.Segments = segments
	} else {
		result.Transcript = decoded.Text
	}
	return result, nil
}
