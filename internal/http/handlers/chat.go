package handlers

import (
	"net/http"

	"github.com/iago/studyhub-back/internal/ai"
	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/logging"
	"github.com/iago/studyhub-back/internal/service"
)

type chatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
	Context  string               `json:"context"`
	FileID   string               `json:"fileId,omitempty"`
}

// Chat answers with an event stream. Failures before the provider stream is
// open are regular JSON errors; after the first byte they only end the
// stream without the done marker.
func (api *API) Chat(w http.ResponseWriter, r *http.Request) {
	var request chatRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}

	stream, err := api.processing.OpenChat(r.Context(), service.ChatInput{
		UserID:   userID(r),
		Messages: request.Messages,
		Context:  request.Context,
		FileID:   request.FileID,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	text, err := stream.Relay(r.Context(), ai.NewSSEWriter(w))
	if err != nil {
		logger := logging.With(r.Context(), api.logger)
		logger.Warn().Err(err).Int("relayed_chars", len(text)).Msg("chat stream ended early")
	}
}
