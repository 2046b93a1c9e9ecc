package quality

import (
	"strings"

	"github.com/iago/studyhub-back/internal/domain"
)

// GradeQuiz compares answers to the expected answer with a case-insensitive
// exact match. Short answers phrased differently are marked wrong.
func GradeQuiz(questions []domain.QuizQuestion, answers map[string]string) domain.QuizResult {
	result := domain.QuizResult{
		Total:   len(questions),
		Results: make([]domain.QuestionResult, 0, len(questions)),
	}
	for _, question := range questions {
		answer := answers[question.ID]
		correct := answer != "" && strings.EqualFold(answer, question.CorrectAnswer)
		if correct {
			result.Score++
		}
		result.Results = append(result.Results, domain.QuestionResult{
			ID:            question.ID,
			Answer:        answer,
			CorrectAnswer: question.CorrectAnswer,
			Correct:       correct,
		})
	}
	return result
}
