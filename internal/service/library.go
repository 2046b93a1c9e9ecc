package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/policy"
	"github.com/iago/studyhub-back/internal/repository"
)

// LibraryService is the CRUD surface over a user's files and chat history.
type LibraryService struct {
	files repository.FilesRepository
	chats repository.ChatRepository
}

func NewLibraryService(files repository.FilesRepository, chats repository.ChatRepository) *LibraryService {
	return &LibraryService{files: files, chats: chats}
}

type CreateFileInput struct {
	ID   string
	Name string
	Type domain.FileType
}

func (s *LibraryService) CreateFile(ctx context.Context, userID string, input CreateFileInput) (*domain.UploadedFile, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.InvalidInput("name is required")
	}
	if !input.Type.Valid() {
		return nil, domain.InvalidInput("type must be one of pdf, audio, youtube")
	}

	file := &domain.UploadedFile{
		ID:     firstNonEmpty(input.ID, uuid.NewString()),
		UserID: userID,
		Name:   name,
		Type:   input.Type,
	}
	if err := s.files.SaveFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

func (s *LibraryService) ListFiles(ctx context.Context, userID string) ([]domain.UploadedFile, error) {
	return s.files.ListFiles(ctx, userID)
}

func (s *LibraryService) GetFile(ctx context.Context, userID, fileID string) (*domain.UploadedFile, error) {
	return s.files.GetFile(ctx, userID, fileID)
}

func (s *LibraryService) UpdateFile(ctx context.Context, userID, fileID string, update domain.FileUpdate) (*domain.UploadedFile, error) {
	if update.ExtractedText == nil && update.Summary == nil && update.Transcript == nil && update.Quiz == nil {
		return nil, domain.InvalidInput("no fields to update")
	}
	if update.Quiz != nil {
		if err := policy.EnforceQuizPayload(update.Quiz); err != nil {
			return nil, err
		}
	}
	return s.files.UpdateFile(ctx, userID, fileID, update)
}

func (s *LibraryService) DeleteFile(ctx context.Context, userID, fileID string) error {
	return s.files.DeleteFile(ctx, userID, fileID)
}

func (s *LibraryService) ListMessages(ctx context.Context, userID, fileID string) ([]domain.ChatMessage, error) {
	return s.chats.ListMessages(ctx, userID, fileID)
}

func (s *LibraryService) AddMessage(ctx context.Context, userID, fileID string, message domain.ChatMessage) (*domain.ChatMessage, error) {
	if err := policy.ValidateRole(message.Role); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message.Content) == "" {
		return nil, domain.InvalidInput("content is required")
	}

	message.ID = firstNonEmpty(message.ID, uuid.NewString())
	message.FileID = fileID
	message.UserID = userID
	if err := s.chats.SaveMessage(ctx, &message); err != nil {
		return nil, err
	}
	return &message, nil
}
