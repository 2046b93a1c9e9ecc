package quality

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/iago/studyhub-back/internal/domain"
)

const MessageQuizParseFailed = "Failed to parse quiz questions"

var ErrNoStructuredOutput = errors.New("model output has no JSON payload")

// StructuredParser reads JSON embedded in free-form model output.
type StructuredParser struct {
	validator *OutputValidator
}

func NewStructuredParser(validator *OutputValidator) *StructuredParser {
	if validator == nil {
		validator = NewOutputValidator()
	}
	return &StructuredParser{validator: validator}
}

// ParseSummary always returns a renderable summary. When the output cannot be
// parsed it returns the degraded single section summary together with a
// parse error for the caller to report.
func (p *StructuredParser) ParseSummary(text string) (domain.Summary, error) {
	raw, err := ExtractJSON(text, '{', '}')
	if err != nil {
		return FallbackSummary(text), domain.WrapError(domain.KindParse, "summary response was not valid JSON", err)
	}

	var decoded domain.Summary
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return FallbackSummary(text), domain.WrapError(domain.KindParse, "summary response has an unexpected shape", err)
	}
	validated, err := p.validator.ValidateSummary(decoded)
	if err != nil {
		return FallbackSummary(text), domain.WrapError(domain.KindParse, "summary response failed validation", err)
	}
	return validated, nil
}

// ParseQuiz has no degraded shape: any failure is a parse error.
func (p *StructuredParser) ParseQuiz(text string) ([]domain.QuizQuestion, error) {
	raw, err := ExtractJSON(text, '[', ']')
	if err != nil {
		return nil, domain.WrapError(domain.KindParse, MessageQuizParseFailed, err)
	}

	var decoded []domain.QuizQuestion
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, domain.WrapError(domain.KindParse, MessageQuizParseFailed, err)
	}
	validated, err := p.validator.ValidateQuiz(decoded)
	if err != nil {
		return nil, domain.WrapError(domain.KindParse, MessageQuizParseFailed, err)
	}
	return validated, nil
}

func FallbackSummary(raw string) domain.Summary {
	return domain.Summary{
		Title: defaultSummaryTitle,
		Sections: []domain.SummarySection{{
			Title:        "Overview",
			Content:      raw,
			BulletPoints: []string{},
		}},
	}
}

// ExtractJSON returns the JSON value delimited by open and close. The whole
// (fence stripped) text is tried first, then the span from the first open
// to the last close delimiter.
func ExtractJSON(text string, open, close byte) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("empty model output")
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = stripCodeFence(trimmed)
	}

	if len(trimmed) > 0 && trimmed[0] == open && json.Valid([]byte(trimmed)) {
		return []byte(trimmed), nil
	}

	start := strings.IndexByte(trimmed, open)
	end := strings.LastIndexByte(trimmed, close)
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return []byte(candidate), nil
		}
	}
	return nil, ErrNoStructuredOutput
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
