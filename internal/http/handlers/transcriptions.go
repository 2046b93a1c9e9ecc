package handlers

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/service"
)

type audioRequest struct {
	AudioURL string `json:"audioUrl"`
	FileID   string `json:"fileId,omitempty"`
}

type youtubeRequest struct {
	YouTubeURL string `json:"youtubeUrl"`
	FileID     string `json:"fileId,omitempty"`
}

// TranscribeAudio accepts either a JSON audio locator or a multipart upload
// and answers 202 with the job to poll.
func (api *API) TranscribeAudio(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		api.transcribeUpload(w, r)
		return
	}

	var request audioRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}
	job, err := api.jobs.EnqueueTranscription(r.Context(), userID(r), request.AudioURL, request.FileID)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeAccepted(w, job)
}

func (api *API) transcribeUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, api.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if strings.Contains(err.Error(), "too large") {
			writeErrorCode(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "audio file is too large")
			return
		}
		api.writeError(w, r, domain.InvalidInput("invalid multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.writeError(w, r, domain.InvalidInput("audio file is required"))
		return
	}
	defer file.Close()

	job, err := api.jobs.EnqueueUpload(r.Context(), userID(r), r.FormValue("fileId"), service.AudioUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeAccepted(w, job)
}

func writeAccepted(w http.ResponseWriter, job *domain.Job) {
	w.Header().Set("Retry-After", "5")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      job.Status,
		"status_url":  "/v1/jobs/" + job.ID,
		"accepted_at": job.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (api *API) TranscribeYouTube(w http.ResponseWriter, r *http.Request) {
	var request youtubeRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}

	transcript, err := api.processing.TranscribeYouTube(r.Context(), userID(r), request.YouTubeURL, request.FileID)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transcript)
}
