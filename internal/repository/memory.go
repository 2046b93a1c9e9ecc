package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/iago/studyhub-back/internal/domain"
)

// MemoryJobsRepository stores jobs in memory for local development.
type MemoryJobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemoryJobsRepository() *MemoryJobsRepository {
	return &MemoryJobsRepository{
		jobs: make(map[string]*domain.Job),
	}
}

func (r *MemoryJobsRepository) CreateJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobsRepository) UpdateJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobsRepository) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

// MemoryLibraryRepository keeps files and chat messages together so a file
// delete can drop its messages in the same critical section.
type MemoryLibraryRepository struct {
	mu       sync.RWMutex
	files    map[string]*domain.UploadedFile
	messages map[string][]domain.ChatMessage
	now      func() time.Time
}

func NewMemoryLibraryRepository() *MemoryLibraryRepository {
	return &MemoryLibraryRepository{
		files:    make(map[string]*domain.UploadedFile),
		messages: make(map[string][]domain.ChatMessage),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryLibraryRepository) SaveFile(_ context.Context, file *domain.UploadedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := cloneFile(file)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = r.now()
	}
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = clone.CreatedAt
	}
	r.files[file.ID] = clone
	return nil
}

func (r *MemoryLibraryRepository) UpdateFile(
	_ context.Context,
	userID string,
	fileID string,
	update domain.FileUpdate,
) (*domain.UploadedFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[fileID]
	if !ok || file.UserID != userID {
		return nil, ErrNotFound
	}
	applyFileUpdate(file, update)
	file.UpdatedAt = r.now()
	return cloneFile(file), nil
}

func (r *MemoryLibraryRepository) GetFile(_ context.Context, userID, fileID string) (*domain.UploadedFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	file, ok := r.files[fileID]
	if !ok || file.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneFile(file), nil
}

func (r *MemoryLibraryRepository) ListFiles(_ context.Context, userID string) ([]domain.UploadedFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := make([]domain.UploadedFile, 0)
	for _, file := range r.files {
		if file.UserID == userID {
			files = append(files, *cloneFile(file))
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

func (r *MemoryLibraryRepository) DeleteFile(_ context.Context, userID, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[fileID]
	if !ok || file.UserID != userID {
		return ErrNotFound
	}
	delete(r.messages, fileID)
	delete(r.files, fileID)
	return nil
}

func (r *MemoryLibraryRepository) SaveMessage(_ context.Context, message *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[message.FileID]
	if !ok || file.UserID != message.UserID {
		return ErrNotFound
	}
	clone := *message
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = r.now()
	}
	r.messages[message.FileID] = append(r.messages[message.FileID], clone)
	return nil
}

func (r *MemoryLibraryRepository) ListMessages(_ context.Context, userID, fileID string) ([]domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	file, ok := r.files[fileID]
	if !ok || file.UserID != userID {
		return nil, ErrNotFound
	}
	messages := append([]domain.ChatMessage(nil), r.messages[fileID]...)
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func applyFileUpdate(file *domain.UploadedFile, update domain.FileUpdate) {
	if update.ExtractedText != nil {
		file.ExtractedText = *update.ExtractedText
	}
	if update.Summary != nil {
		file.Summary = *update.Summary
	}
	if update.Transcript != nil {
		file.Transcript = *update.Transcript
	}
	if update.Quiz != nil {
		file.Quiz = append(json.RawMessage(nil), update.Quiz...)
	}
}

func cloneJob(job *domain.Job) *domain.Job {
	if job == nil {
		return nil
	}
	clone := *job
	clone.Payload = append([]byte(nil), job.Payload...)
	clone.Result = append([]byte(nil), job.Result...)
	return &clone
}

func cloneFile(file *domain.UploadedFile) *domain.UploadedFile {
	if file == nil {
		return nil
	}
	clone := *file
	if file.Quiz != nil {
		clone.Quiz = append(json.RawMessage(nil), file.Quiz...)
	}
	return &clone
}
