package policy

import (
	"encoding/json"
	"strings"

	"github.com/iago/studyhub-back/internal/domain"
)

const maxQuizFieldBytes = 4000

type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Evaluation struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`
}

// EnforceQuizPayload rejects stored quizzes that clients could not render.
// Both a bare question array and {"questions": [...]} are accepted.
func EnforceQuizPayload(payload json.RawMessage) error {
	evaluation := EvaluateQuizPayload(payload)
	if evaluation.Allowed {
		return nil
	}
	return domain.InvalidInput("quiz rejected: " + evaluation.Violations[0].Message)
}

func EvaluateQuizPayload(payload json.RawMessage) Evaluation {
	if strings.TrimSpace(string(payload)) == "" {
		return Evaluation{Allowed: true}
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return denied(Violation{Code: "invalid_json", Message: "quiz must be valid JSON"})
	}

	questions, ok := quizQuestions(decoded)
	if !ok {
		return denied(Violation{Code: "invalid_shape", Message: "quiz must be a list of questions"})
	}

	violations := make([]Violation, 0, 2)
	for _, raw := range questions {
		question, ok := raw.(map[string]any)
		if !ok {
			violations = append(violations, Violation{Code: "invalid_question", Message: "each question must be an object"})
			continue
		}
		text, _ := question["question"].(string)
		if strings.TrimSpace(text) == "" {
			violations = append(violations, Violation{Code: "missing_question", Message: "question text is required"})
		}
		if kind, present := question["type"].(string); present && !validQuestionType(domain.QuestionType(kind)) {
			violations = append(violations, Violation{Code: "invalid_type", Message: "unknown question type " + kind})
		}
	}
	if hasOversizedField(collectStringValues(decoded, nil)) {
		violations = append(violations, Violation{Code: "payload_too_large", Message: "one or more quiz fields exceed size limits"})
	}

	if len(violations) == 0 {
		return Evaluation{Allowed: true}
	}
	return denied(dedupeViolations(violations)...)
}

func denied(violations ...Violation) Evaluation {
	return Evaluation{Allowed: false, Violations: violations}
}

func quizQuestions(decoded any) ([]any, bool) {
	switch typed := decoded.(type) {
	case []any:
		return typed, true
	case map[string]any:
		questions, ok := typed["questions"].([]any)
		return questions, ok
	}
	return nil, false
}

func validQuestionType(kind domain.QuestionType) bool {
	switch kind {
	case domain.QuestionMultipleChoice, domain.QuestionTrueFalse, domain.QuestionShortAnswer:
		return true
	}
	return false
}

func collectStringValues(value any, current []string) []string {
	switch typed := value.(type) {
	case map[string]any:
		for _, child := range typed {
			current = collectStringValues(child, current)
		}
	case []any:
		for _, child := range typed {
			current = collectStringValues(child, current)
		}
	case string:
		if trimmed := strings.TrimSpace(typed); trimmed != "" {
			current = append(current, trimmed)
		}
	}
	return current
}

func hasOversizedField(values []string) bool {
	for _, value := range values {
		if len(value) > maxQuizFieldBytes {
			return true
		}
	}
	return false
}

func dedupeViolations(values []Violation) []Violation {
	seen := make(map[string]struct{}, len(values))
	result := make([]Violation, 0, len(values))
	for _, value := range values {
		if _, exists := seen[value.Code]; exists {
			continue
		}
		seen[value.Code] = struct{}{}
		result = append(result, value)
	}
	return result
}
