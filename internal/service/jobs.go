package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/queue"
	"github.com/iago/studyhub-back/internal/repository"
	"github.com/iago/studyhub-back/internal/storage"
)

type JobsService struct {
	repo     repository.JobsRepository
	files    repository.FilesRepository
	producer queue.Producer
	store    storage.ObjectStore
}

type JobsDependencies struct {
	Repo     repository.JobsRepository
	Files    repository.FilesRepository
	Producer queue.Producer
	// Store is optional; without it only audio locators are accepted.
	Store storage.ObjectStore
}

// AudioUpload is an audio file received from the caller.
type AudioUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func NewJobsService(deps JobsDependencies) *JobsService {
	return &JobsService{
		repo:     deps.Repo,
		files:    deps.Files,
		producer: deps.Producer,
		store:    deps.Store,
	}
}

// EnqueueTranscription creates a pending transcription job for a publicly
// reachable audio locator.
func (s *JobsService) EnqueueTranscription(ctx context.Context, userID, audioURL, fileID string) (*domain.Job, error) {
	if err := validateAudioURL(audioURL); err != nil {
		return nil, err
	}
	if err := s.checkFile(ctx, userID, fileID); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, userID, fileID, domain.TranscribeAudioPayload{AudioURL: strings.TrimSpace(audioURL)})
}

// EnqueueUpload stores the audio in object storage and transcribes it from a
// presigned locator.
func (s *JobsService) EnqueueUpload(ctx context.Context, userID, fileID string, upload AudioUpload) (*domain.Job, error) {
	if s.store == nil {
		return nil, domain.ConfigurationError("MINIO_ENDPOINT")
	}
	if upload.Body == nil {
		return nil, domain.InvalidInput("audio file is required")
	}
	if err := s.checkFile(ctx, userID, fileID); err != nil {
		return nil, err
	}

	key := storage.ObjectKey(userID, uuid.NewString(), upload.Filename)
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.store.Put(ctx, key, upload.Body, upload.Size, contentType); err != nil {
		return nil, fmt.Errorf("store audio upload: %w", err)
	}
	locator, err := s.store.PresignedGetURL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("presign audio upload: %w", err)
	}
	return s.enqueue(ctx, userID, fileID, domain.TranscribeAudioPayload{AudioURL: locator, ObjectKey: key})
}

// GetJob returns the job only to the user who created it.
func (s *JobsService) GetJob(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return job, nil
}

func (s *JobsService) checkFile(ctx context.Context, userID, fileID string) error {
	if fileID == "" || s.files == nil {
		return nil
	}
	_, err := s.files.GetFile(ctx, userID, fileID)
	return err
}

func (s *JobsService) enqueue(
	ctx context.Context,
	userID string,
	fileID string,
	payload domain.TranscribeAudioPayload,
) (*domain.Job, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      domain.JobKindTranscribeAudio,
		UserID:    userID,
		FileID:    fileID,
		Payload:   encoded,
		Status:    domain.JobStatusPending,
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	message := domain.QueueMessage{
		JobID:       job.ID,
		Kind:        job.Kind,
		UserID:      userID,
		FileID:      fileID,
		Payload:     encoded,
		Attempt:     0,
		RequestedAt: now,
	}

	if err := s.producer.Enqueue(ctx, message); err != nil {
		job.Status = domain.JobStatusFailed
		job.ErrorCode = "internal_error"
		job.ErrorMessage = "failed to enqueue job"
		job.UpdatedAt = time.Now().UTC()
		_ = s.repo.UpdateJob(ctx, job)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

func validateAudioURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.InvalidInput("Audio URL is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return domain.InvalidInput("Audio URL must be an absolute http(s) URL")
	}
	return nil
}
