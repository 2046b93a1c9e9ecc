package repository

import (
	"context"
	"errors"

	"github.com/iago/studyhub-back/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// JobsRepository abstracts job persistence and query operations.
type JobsRepository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	UpdateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// FilesRepository stores uploaded files and their derived data. Every
// lookup is scoped to the owning user.
type FilesRepository interface {
	SaveFile(ctx context.Context, file *domain.UploadedFile) error
	UpdateFile(ctx context.Context, userID, fileID string, update domain.FileUpdate) (*domain.UploadedFile, error)
	GetFile(ctx context.Context, userID, fileID string) (*domain.UploadedFile, error)
	// ListFiles returns the newest file first.
	ListFiles(ctx context.Context, userID string) ([]domain.UploadedFile, error)
	// DeleteFile removes the file's chat messages before the file itself.
	DeleteFile(ctx context.Context, userID, fileID string) error
}

type ChatRepository interface {
	SaveMessage(ctx context.Context, message *domain.ChatMessage) error
	// ListMessages returns the oldest message first.
	ListMessages(ctx context.Context, userID, fileID string) ([]domain.ChatMessage, error)
}
