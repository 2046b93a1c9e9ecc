package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/metrics"
	"github.com/iago/studyhub-back/internal/policy"
	"github.com/iago/studyhub-back/internal/queue"
	"github.com/iago/studyhub-back/internal/repository"
	"github.com/rs/zerolog"
)

const (
	interruptedCode       = "interrupted"
	interruptStoreTimeout = 5 * time.Second
)

// Transcriber turns an audio locator into a finished transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (domain.Transcript, error)
}

type ProcessorConfig struct {
	Consumer    queue.Consumer
	Jobs        repository.JobsRepository
	Files       repository.FilesRepository
	Transcriber Transcriber
	// MaxAttempts must match the queue backend so the last delivery is
	// recorded as failed.
	MaxAttempts int
	Logger      *zerolog.Logger
}

// Processor consumes queue jobs and persists status transitions.
type Processor struct {
	consumer    queue.Consumer
	jobs        repository.JobsRepository
	files       repository.FilesRepository
	transcriber Transcriber
	maxAttempts int
	logger      *zerolog.Logger
	now         func() time.Time
}

func NewProcessor(config ProcessorConfig) *Processor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Logger == nil {
		nop := zerolog.Nop()
		config.Logger = &nop
	}
	return &Processor{
		consumer:    config.Consumer,
		jobs:        config.Jobs,
		files:       config.Files,
		transcriber: config.Transcriber,
		maxAttempts: config.MaxAttempts,
		logger:      config.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start consumes until ctx is cancelled, reconnecting after consumer errors.
func (p *Processor) Start(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := p.consumer.Consume(ctx, p.ProcessMessage)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		p.logger.Error().Err(err).Msg("worker consume loop error")

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// ProcessMessage runs one delivery. It returns an error only when the
// delivery should be retried; terminal outcomes are stored on the job.
func (p *Processor) ProcessMessage(ctx context.Context, message domain.QueueMessage) error {
	job, err := p.jobs.GetJob(ctx, message.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", message.JobID, err)
	}
	logger := p.logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()

	if job.Terminal() {
		logger.Info().Str("status", string(job.Status)).Msg("skipping redelivered job")
		return nil
	}

	job.Status = domain.JobStatusProcessing
	job.Attempts = message.Attempt + 1
	job.UpdatedAt = p.now()
	if err := p.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	result, processErr := p.run(ctx, job)
	if processErr != nil && ctx.Err() != nil {
		return p.interrupt(ctx, job, processErr, logger)
	}
	if processErr != nil {
		if retryable(processErr) && job.Attempts < p.maxAttempts {
			logger.Warn().Err(processErr).Int("attempt", job.Attempts).Msg("job attempt failed, will retry")
			return processErr
		}
		return p.fail(ctx, job, processErr, logger)
	}

	job.Status = domain.JobStatusDone
	job.Result = result
	job.ErrorCode = ""
	job.ErrorMessage = ""
	job.UpdatedAt = p.now()
	if err := p.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	metrics.JobCompleted(string(job.Kind), string(job.Status))
	logger.Info().Int("attempt", job.Attempts).Msg("job processed")
	return nil
}

func (p *Processor) run(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	switch job.Kind {
	case domain.JobKindTranscribeAudio:
		return p.transcribeAudio(ctx, job)
	default:
		return nil, domain.InvalidInput(fmt.Sprintf("unsupported job kind: %s", job.Kind))
	}
}

func (p *Processor) transcribeAudio(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var payload domain.TranscribeAudioPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || strings.TrimSpace(payload.AudioURL) == "" {
		return nil, domain.InvalidInput("audio_url is required")
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Str("audio_url", policy.RedactURL(payload.AudioURL)).
		Msg("starting transcription")

	transcript, err := p.transcriber.Transcribe(ctx, payload.AudioURL)
	if err != nil {
		return nil, err
	}

	if job.FileID != "" && p.files != nil {
		text := transcript.Text
		_, err := p.files.UpdateFile(ctx, job.UserID, job.FileID, domain.FileUpdate{
			Transcript:    &text,
			ExtractedText: &text,
		})
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("store transcript on file: %w", err)
		}
		if errors.Is(err, repository.ErrNotFound) {
			p.logger.Warn().Str("job_id", job.ID).Str("file_id", job.FileID).Msg("file removed before transcript was stored")
		}
	}

	encoded, err := json.Marshal(transcript)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return encoded, nil
}

func (p *Processor) fail(ctx context.Context, job *domain.Job, cause error, logger zerolog.Logger) error {
	kind := domain.KindOf(cause)
	job.Status = domain.JobStatusFailed
	job.ErrorCode = kind.Code()
	job.ErrorMessage = publicMessage(cause)
	job.UpdatedAt = p.now()
	if err := p.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	metrics.JobCompleted(string(job.Kind), string(job.Status))
	logger.Error().
		Str("error_code", job.ErrorCode).
		Str("error", policy.Redact(cause.Error())).
		Int("attempt", job.Attempts).
		Msg("job failed")
	return nil
}

// interrupt records a job cut short by shutdown. The local queue drops
// in-flight deliveries, so a job left in processing would never finish.
// Redeliveries from a durable queue see the terminal status and skip it.
func (p *Processor) interrupt(ctx context.Context, job *domain.Job, cause error, logger zerolog.Logger) error {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interruptStoreTimeout)
	defer cancel()

	job.Status = domain.JobStatusFailed
	job.ErrorCode = interruptedCode
	job.ErrorMessage = "Processing was interrupted. Please submit the audio again."
	job.UpdatedAt = p.now()
	if err := p.jobs.UpdateJob(storeCtx, job); err != nil {
		return fmt.Errorf("mark interrupted: %w", err)
	}
	metrics.JobCompleted(string(job.Kind), string(job.Status))
	logger.Warn().Err(cause).Int("attempt", job.Attempts).Msg("job interrupted by shutdown")
	return nil
}

// retryable reports whether another delivery could succeed. Failures the
// provider reported, timeouts and bad input are final.
func retryable(err error) bool {
	switch domain.KindOf(err) {
	case "", domain.KindTransient, domain.KindUpstream, domain.KindRateLimit:
		return true
	default:
		return false
	}
}

func publicMessage(err error) string {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "internal error"
}
