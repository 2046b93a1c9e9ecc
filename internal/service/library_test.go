package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/repository"
)

func TestLibraryFileLifecycle(t *testing.T) {
	library := repository.NewMemoryLibraryRepository()
	svc := NewLibraryService(library, library)
	ctx := context.Background()

	file, err := svc.CreateFile(ctx, "u1", CreateFileInput{Name: " notes.pdf ", Type: domain.FileTypePDF})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if file.ID == "" || file.Name != "notes.pdf" {
		t.Fatalf("expected generated id and trimmed name, got %+v", file)
	}

	text := "extracted"
	updated, err := svc.UpdateFile(ctx, "u1", file.ID, domain.FileUpdate{ExtractedText: &text})
	if err != nil {
		t.Fatalf("update file: %v", err)
	}
	if updated.ExtractedText != "extracted" {
		t.Fatalf("expected updated text, got %q", updated.ExtractedText)
	}

	if _, err := svc.AddMessage(ctx, "u1", file.ID, domain.ChatMessage{Role: domain.ChatRoleUser, Content: "hello"}); err != nil {
		t.Fatalf("add message: %v", err)
	}
	messages, err := svc.ListMessages(ctx, "u1", file.ID)
	if err != nil || len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d (%v)", len(messages), err)
	}

	files, err := svc.ListFiles(ctx, "u1")
	if err != nil || len(files) != 1 {
		t.Fatalf("expected 1 file, got %d (%v)", len(files), err)
	}

	if err := svc.DeleteFile(ctx, "u1", file.ID); err != nil {
		t.Fatalf("delete file: %v", err)
	}
	if _, err := svc.GetFile(ctx, "u1", file.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestLibraryValidation(t *testing.T) {
	library := repository.NewMemoryLibraryRepository()
	svc := NewLibraryService(library, library)
	ctx := context.Background()

	if _, err := svc.CreateFile(ctx, "u1", CreateFileInput{Name: "x", Type: "docx"}); domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("expected invalid input for type, got %v", err)
	}
	if _, err := svc.CreateFile(ctx, "u1", CreateFileInput{Type: domain.FileTypeAudio}); domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("expected invalid input for name, got %v", err)
	}

	file, err := svc.CreateFile(ctx, "u1", CreateFileInput{ID: "fixed", Name: "talk", Type: domain.FileTypeYouTube})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if file.ID != "fixed" {
		t.Fatalf("expected caller id to be kept, got %q", file.ID)
	}
	if _, err := svc.UpdateFile(ctx, "u1", "fixed", domain.FileUpdate{}); domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("expected invalid input for empty update, got %v", err)
	}
	if _, err := svc.UpdateFile(ctx, "u1", "fixed", domain.FileUpdate{Quiz: json.RawMessage(`{"questions":`)}); domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("expected invalid input for bad quiz JSON, got %v", err)
	}
	if _, err := svc.AddMessage(ctx, "u1", "fixed", domain.ChatMessage{Role: "system", Content: "x"}); domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("expected invalid input for role, got %v", err)
	}
	if _, err := svc.AddMessage(ctx, "u2", "fixed", domain.ChatMessage{Role: domain.ChatRoleUser, Content: "x"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for another user's file, got %v", err)
	}
}
