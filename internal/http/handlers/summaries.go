package handlers

import (
	"net/http"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/service"
)

type contentRequest struct {
	Text   string `json:"text"`
	FileID string `json:"fileId,omitempty"`
}

type gradeRequest struct {
	Questions []domain.QuizQuestion `json:"questions"`
	Answers   map[string]string     `json:"answers"`
}

func (api *API) Summaries(w http.ResponseWriter, r *http.Request) {
	var request contentRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}

	output, err := api.processing.Summarize(r.Context(), service.SummarizeInput{
		UserID: userID(r),
		Text:   request.Text,
		FileID: request.FileID,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

func (api *API) Quizzes(w http.ResponseWriter, r *http.Request) {
	var request contentRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}

	output, err := api.processing.GenerateQuiz(r.Context(), service.QuizInput{
		UserID: userID(r),
		Text:   request.Text,
		FileID: request.FileID,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

func (api *API) GradeQuiz(w http.ResponseWriter, r *http.Request) {
	var request gradeRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}

	result, err := api.processing.GradeQuiz(request.Questions, request.Answers)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
