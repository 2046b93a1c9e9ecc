package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iago/studyhub-back/internal/ai"
	"github.com/iago/studyhub-back/internal/cache"
	contextbuilder "github.com/iago/studyhub-back/internal/context"
	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/policy"
	"github.com/iago/studyhub-back/internal/quality"
	"github.com/iago/studyhub-back/internal/repository"
	"github.com/rs/zerolog"
)

// CaptionsFetcher resolves a video link to its caption transcript.
type CaptionsFetcher interface {
	Fetch(ctx context.Context, videoURL string) (domain.VideoTranscript, error)
}

type PDFExtractor interface {
	ExtractBase64(ctx context.Context, encoded string) (string, error)
}

type ProcessingDependencies struct {
	Generator ai.TextGenerator
	Builder   *contextbuilder.Builder
	Parser    *quality.StructuredParser
	Cache     *cache.ResultCache
	Files     repository.FilesRepository
	Chats     repository.ChatRepository
	Captions  CaptionsFetcher
	PDF       PDFExtractor
	// IncrementalStream is set when the provider stream carries only new
	// text per chunk instead of the cumulative text.
	IncrementalStream bool
	Logger            *zerolog.Logger
}

// ProcessingService runs the content operations: summaries, quizzes, chat,
// video captions and PDF text. Results can be stored on a library file.
type ProcessingService struct {
	generator   ai.TextGenerator
	builder     *contextbuilder.Builder
	parser      *quality.StructuredParser
	cache       *cache.ResultCache
	files       repository.FilesRepository
	chats       repository.ChatRepository
	captions    CaptionsFetcher
	pdf         PDFExtractor
	incremental bool
	logger      *zerolog.Logger
}

type SummarizeInput struct {
	UserID string
	Text   string
	FileID string
}

type SummaryOutput struct {
	Summary domain.Summary `json:"summary"`
	// Degraded marks the single section fallback built from unparseable output.
	Degraded bool `json:"degraded"`
	Cached   bool `json:"cached"`
}

type QuizInput struct {
	UserID string
	Text   string
	FileID string
}

type QuizOutput struct {
	Questions []domain.QuizQuestion `json:"questions"`
	Cached    bool                  `json:"cached"`
}

type ChatInput struct {
	UserID   string
	Messages []domain.ChatMessage
	Context  string
	FileID   string
}

func NewProcessingService(deps ProcessingDependencies) (*ProcessingService, error) {
	if deps.Builder == nil {
		builder, err := contextbuilder.NewBuilder(nil)
		if err != nil {
			return nil, err
		}
		deps.Builder = builder
	}
	if deps.Parser == nil {
		deps.Parser = quality.NewStructuredParser(nil)
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}

	return &ProcessingService{
		generator:   deps.Generator,
		builder:     deps.Builder,
		parser:      deps.Parser,
		cache:       deps.Cache,
		files:       deps.Files,
		chats:       deps.Chats,
		captions:    deps.Captions,
		pdf:         deps.PDF,
		incremental: deps.IncrementalStream,
		logger:      deps.Logger,
	}, nil
}

func (s *ProcessingService) Summarize(ctx context.Context, input SummarizeInput) (SummaryOutput, error) {
	request, err := s.builder.BuildSummary(input.Text)
	if err != nil {
		return SummaryOutput{}, err
	}
	if err := s.checkFile(ctx, input.UserID, input.FileID); err != nil {
		return SummaryOutput{}, err
	}

	signature := cache.Signature(string(ai.TaskSummary), request.Model, input.Text)
	if cached, ok := s.cacheGet(ai.TaskSummary, signature); ok {
		var summary domain.Summary
		if err := json.Unmarshal(cached.Value, &summary); err == nil {
			output := SummaryOutput{Summary: summary, Cached: true}
			s.storeSummary(ctx, input, output.Summary)
			return output, nil
		}
	}

	result, err := s.generate(ctx, request)
	if err != nil {
		return SummaryOutput{}, err
	}

	summary, parseErr := s.parser.ParseSummary(result.Text)
	output := SummaryOutput{Summary: summary}
	if parseErr != nil {
		output.Degraded = true
		s.logger.Warn().Err(parseErr).Int("response_chars", len(result.Text)).Msg("summary output not parseable, returning degraded summary")
	} else {
		s.cacheSet(signature, result.ModelID, summary)
	}

	s.storeSummary(ctx, input, output.Summary)
	return output, nil
}

func (s *ProcessingService) GenerateQuiz(ctx context.Context, input QuizInput) (QuizOutput, error) {
	request, err := s.builder.BuildQuiz(input.Text)
	if err != nil {
		return QuizOutput{}, err
	}
	if err := s.checkFile(ctx, input.UserID, input.FileID); err != nil {
		return QuizOutput{}, err
	}

	signature := cache.Signature(string(ai.TaskQuiz), request.Model, input.Text)
	if cached, ok := s.cacheGet(ai.TaskQuiz, signature); ok {
		var questions []domain.QuizQuestion
		if err := json.Unmarshal(cached.Value, &questions); err == nil {
			s.storeQuiz(ctx, input, questions)
			return QuizOutput{Questions: questions, Cached: true}, nil
		}
	}

	result, err := s.generate(ctx, request)
	if err != nil {
		return QuizOutput{}, err
	}

	questions, err := s.parser.ParseQuiz(result.Text)
	if err != nil {
		s.logger.Warn().Err(err).Int("response_chars", len(result.Text)).Msg("quiz output not parseable")
		return QuizOutput{}, err
	}
	s.cacheSet(signature, result.ModelID, questions)
	s.storeQuiz(ctx, input, questions)
	return QuizOutput{Questions: questions}, nil
}

func (s *ProcessingService) GradeQuiz(questions []domain.QuizQuestion, answers map[string]string) (domain.QuizResult, error) {
	if len(questions) == 0 {
		return domain.QuizResult{}, domain.InvalidInput("questions are required")
	}
	return quality.GradeQuiz(questions, answers), nil
}

// ChatStream is an open provider stream. Relay must be called exactly once.
type ChatStream struct {
	body       io.ReadCloser
	translator *ai.DeltaTranslator
	onComplete func(ctx context.Context, text string)
}

// Relay forwards the stream to sink. The assistant reply is stored only when
// the provider stream completed.
func (c *ChatStream) Relay(ctx context.Context, sink ai.DeltaSink) (string, error) {
	defer c.body.Close()

	text, err := ai.Relay(ctx, c.body, c.translator, sink)
	if err != nil {
		return text, err
	}
	if c.onComplete != nil {
		c.onComplete(ctx, text)
	}
	return text, nil
}

// OpenChat validates the conversation and opens the provider stream. No
// bytes are written anywhere until the caller relays the stream, so errors
// returned here can still become a regular error response.
func (s *ProcessingService) OpenChat(ctx context.Context, input ChatInput) (*ChatStream, error) {
	if len(input.Messages) == 0 {
		return nil, domain.InvalidInput("No messages provided")
	}
	for _, message := range input.Messages {
		if err := policy.ValidateRole(message.Role); err != nil {
			return nil, err
		}
	}

	documentContext := input.Context
	if input.FileID != "" && s.files != nil {
		file, err := s.files.GetFile(ctx, input.UserID, input.FileID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(documentContext) == "" {
			documentContext = firstNonEmpty(file.ExtractedText, file.Transcript)
		}
	}

	request, err := s.builder.BuildChat(input.Messages, documentContext)
	if err != nil {
		return nil, err
	}
	if s.generator == nil {
		return nil, domain.ConfigurationError("GEMINI_API_KEY")
	}

	body, err := s.generator.Stream(ctx, request)
	if err != nil {
		return nil, err
	}

	stream := &ChatStream{
		body:       body,
		translator: ai.NewDeltaTranslator(ai.DeltaTranslatorOptions{Incremental: s.incremental, Logger: s.logger}),
	}
	if input.FileID != "" && s.chats != nil {
		question := input.Messages[len(input.Messages)-1]
		stream.onComplete = func(ctx context.Context, text string) {
			s.storeExchange(ctx, input, question, text)
		}
	}
	return stream, nil
}

func (s *ProcessingService) TranscribeYouTube(ctx context.Context, userID, videoURL, fileID string) (domain.VideoTranscript, error) {
	if strings.TrimSpace(videoURL) == "" {
		return domain.VideoTranscript{}, domain.InvalidInput("YouTube URL is required")
	}
	if s.captions == nil {
		return domain.VideoTranscript{}, domain.ConfigurationError("TRANSCRIPT_API_KEY")
	}
	if err := s.checkFile(ctx, userID, fileID); err != nil {
		return domain.VideoTranscript{}, err
	}

	transcript, err := s.captions.Fetch(ctx, videoURL)
	if err != nil {
		return domain.VideoTranscript{}, err
	}
	if fileID != "" {
		text := transcript.Transcript
		s.updateFile(ctx, userID, fileID, domain.FileUpdate{Transcript: &text, ExtractedText: &text})
	}
	return transcript, nil
}

func (s *ProcessingService) ExtractPDF(ctx context.Context, userID, encoded, fileID string) (string, error) {
	if s.pdf == nil {
		return "", domain.NewError(domain.KindConfiguration, "PDF extractor is not configured")
	}
	if err := s.checkFile(ctx, userID, fileID); err != nil {
		return "", err
	}

	text, err := s.pdf.ExtractBase64(ctx, encoded)
	if err != nil {
		return "", err
	}
	if fileID != "" {
		s.updateFile(ctx, userID, fileID, domain.FileUpdate{ExtractedText: &text})
	}
	return text, nil
}

func (s *ProcessingService) generate(ctx context.Context, request ai.GenerateRequest) (ai.GenerateResult, error) {
	if s.generator == nil {
		return ai.GenerateResult{}, domain.ConfigurationError("GEMINI_API_KEY")
	}
	started := time.Now()
	result, err := s.generator.Generate(ctx, request)
	if err != nil {
		return ai.GenerateResult{}, err
	}
	s.logger.Debug().
		Str("model", result.ModelID).
		Int("attempts", result.Attempts).
		Int("output_tokens", result.Usage.OutputTokens).
		Dur("elapsed", time.Since(started)).
		Msg("generation completed")
	return result, nil
}

// checkFile rejects a file id that does not belong to the user before any
// provider call is made.
func (s *ProcessingService) checkFile(ctx context.Context, userID, fileID string) error {
	if fileID == "" || s.files == nil {
		return nil
	}
	_, err := s.files.GetFile(ctx, userID, fileID)
	return err
}

func (s *ProcessingService) storeSummary(ctx context.Context, input SummarizeInput, summary domain.Summary) {
	if input.FileID == "" {
		return
	}
	encoded, err := json.Marshal(summary)
	if err != nil {
		return
	}
	text := string(encoded)
	s.updateFile(ctx, input.UserID, input.FileID, domain.FileUpdate{Summary: &text})
}

func (s *ProcessingService) storeQuiz(ctx context.Context, input QuizInput, questions []domain.QuizQuestion) {
	if input.FileID == "" {
		return
	}
	encoded, err := json.Marshal(map[string]any{"questions": questions})
	if err != nil {
		return
	}
	s.updateFile(ctx, input.UserID, input.FileID, domain.FileUpdate{Quiz: encoded})
}

// updateFile stores derived data. The caller already has its result, so a
// failed write is logged instead of returned.
func (s *ProcessingService) updateFile(ctx context.Context, userID, fileID string, update domain.FileUpdate) {
	if s.files == nil {
		return
	}
	if _, err := s.files.UpdateFile(ctx, userID, fileID, update); err != nil {
		s.logger.Error().Err(err).Str("file_id", fileID).Msg("store derived file data failed")
	}
}

func (s *ProcessingService) storeExchange(ctx context.Context, input ChatInput, question domain.ChatMessage, answer string) {
	now := time.Now().UTC()
	messages := make([]domain.ChatMessage, 0, 2)
	if question.Role == domain.ChatRoleUser {
		messages = append(messages, domain.ChatMessage{
			ID:        firstNonEmpty(question.ID, uuid.NewString()),
			Role:      domain.ChatRoleUser,
			Content:   question.Content,
			CreatedAt: now,
		})
	}
	messages = append(messages, domain.ChatMessage{
		ID:        uuid.NewString(),
		Role:      domain.ChatRoleAssistant,
		Content:   answer,
		CreatedAt: now.Add(time.Millisecond),
	})

	for index := range messages {
		messages[index].FileID = input.FileID
		messages[index].UserID = input.UserID
		if err := s.chats.SaveMessage(ctx, &messages[index]); err != nil {
			s.logger.Error().Err(err).Str("file_id", input.FileID).Msg("store chat message failed")
			return
		}
	}
}

func (s *ProcessingService) cacheGet(task ai.TaskKind, signature string) (cache.Entry, bool) {
	if s.cache == nil {
		return cache.Entry{}, false
	}
	return s.cache.Get(string(task), signature)
}

func (s *ProcessingService) cacheSet(signature, modelID string, value any) {
	if s.cache == nil {
		return
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode cache entry failed")
		return
	}
	s.cache.Set(signature, cache.Entry{Value: encoded, ModelID: modelID})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
