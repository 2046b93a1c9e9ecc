package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/service"
)

type createFileRequest struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Type domain.FileType `json:"type"`
}

type updateFileRequest struct {
	ExtractedText *string         `json:"extractedText"`
	Summary       *string         `json:"summary"`
	Transcript    *string         `json:"transcript"`
	Quiz          json.RawMessage `json:"quiz"`
}

type createMessageRequest struct {
	ID      string          `json:"id,omitempty"`
	Role    domain.ChatRole `json:"role"`
	Content string          `json:"content"`
}

func (api *API) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := api.library.ListFiles(r.Context(), userID(r))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	if files == nil {
		files = []domain.UploadedFile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (api *API) CreateFile(w http.ResponseWriter, r *http.Request) {
	var request createFileRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}

	file, err := api.library.CreateFile(r.Context(), userID(r), service.CreateFileInput{
		ID:   request.ID,
		Name: request.Name,
		Type: request.Type,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

func (api *API) GetFile(w http.ResponseWriter, r *http.Request) {
	file, err := api.library.GetFile(r.Context(), userID(r), chi.URLParam(r, "fileID"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (api *API) UpdateFile(w http.ResponseWriter, r *http.Request) {
	var request updateFileRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}

	update := domain.FileUpdate{
		ExtractedText: request.ExtractedText,
		Summary:       request.Summary,
		Transcript:    request.Transcript,
	}
	if len(request.Quiz) > 0 && string(request.Quiz) != "null" {
		update.Quiz = request.Quiz
	}

	file, err := api.library.UpdateFile(r.Context(), userID(r), chi.URLParam(r, "fileID"), update)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (api *API) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := api.library.DeleteFile(r.Context(), userID(r), chi.URLParam(r, "fileID")); err != nil {
		api.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := api.library.ListMessages(r.Context(), userID(r), chi.URLParam(r, "fileID"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (api *API) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var request createMessageRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}

	message, err := api.library.AddMessage(r.Context(), userID(r), chi.URLParam(r, "fileID"), domain.ChatMessage{
		ID:      request.ID,
		Role:    request.Role,
		Content: request.Content,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}
