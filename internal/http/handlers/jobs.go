package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/iago/studyhub-back/internal/domain"
)

func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		api.writeError(w, r, domain.InvalidInput("job_id is required"))
		return
	}

	job, err := api.jobs.GetJob(r.Context(), userID(r), jobID)
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	response := map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"kind":       job.Kind,
		"attempts":   job.Attempts,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.FileID != "" {
		response["file_id"] = job.FileID
	}
	if len(job.Result) > 0 {
		response["result"] = jsonRawOrFallback(job.Result)
	}
	if job.Status == domain.JobStatusFailed {
		response["error"] = map[string]any{
			"code":    job.ErrorCode,
			"message": job.ErrorMessage,
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func jsonRawOrFallback(value []byte) any {
	var decoded any
	if err := json.Unmarshal(value, &decoded); err == nil {
		return decoded
	}
	return string(value)
}
