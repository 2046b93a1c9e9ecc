package quality

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iago/studyhub-back/internal/domain"
)

var ErrQualityRejected = errors.New("output failed quality checks")

const (
	defaultSummaryTitle = "Content Summary"
	maxTitleLength      = 200
	minChoiceOptions    = 2
)

// OutputValidator normalizes parsed model output and rejects shapes the
// client cannot render.
type OutputValidator struct{}

func NewOutputValidator() *OutputValidator {
	return &OutputValidator{}
}

func (v *OutputValidator) ValidateSummary(summary domain.Summary) (domain.Summary, error) {
	output := domain.Summary{
		Title:    truncateAtWord(normalizeText(summary.Title), maxTitleLength),
		Sections: make([]domain.SummarySection, 0, len(summary.Sections)),
	}
	if output.Title == "" {
		output.Title = defaultSummaryTitle
	}

	for _, section := range summary.Sections {
		title := truncateAtWord(normalizeText(section.Title), maxTitleLength)
		content := strings.TrimSpace(section.Content)
		if title == "" && content == "" {
			continue
		}

		bullets := make([]string, 0, len(section.BulletPoints))
		for _, bullet := range section.BulletPoints {
			if trimmed := strings.TrimSpace(bullet); trimmed != "" {
				bullets = append(bullets, trimmed)
			}
		}
		output.Sections = append(output.Sections, domain.SummarySection{
			Title:        title,
			Content:      content,
			BulletPoints: bullets,
		})
	}

	if len(output.Sections) == 0 {
		return domain.Summary{}, fmt.Errorf("%w: summary has no sections", ErrQualityRejected)
	}
	return output, nil
}

// ValidateQuiz drops questions missing required fields and assigns ids to
// questions without a unique one.
func (v *OutputValidator) ValidateQuiz(questions []domain.QuizQuestion) ([]domain.QuizQuestion, error) {
	output := make([]domain.QuizQuestion, 0, len(questions))
	seen := make(map[string]struct{}, len(questions))

	for _, question := range questions {
		question.Type = domain.QuestionType(strings.ToLower(strings.TrimSpace(string(question.Type))))
		question.Question = normalizeText(question.Question)
		question.CorrectAnswer = strings.TrimSpace(question.CorrectAnswer)
		if question.Question == "" || question.CorrectAnswer == "" {
			continue
		}

		switch question.Type {
		case domain.QuestionMultipleChoice:
			options := make([]string, 0, len(question.Options))
			for _, option := range question.Options {
				if trimmed := strings.TrimSpace(option); trimmed != "" {
					options = append(options, trimmed)
				}
			}
			if len(options) < minChoiceOptions {
				continue
			}
			question.Options = options
		case domain.QuestionTrueFalse, domain.QuestionShortAnswer:
			question.Options = nil
		default:
			continue
		}

		id := strings.TrimSpace(question.ID)
		if _, duplicate := seen[id]; id == "" || duplicate {
			id = "q" + strconv.Itoa(len(output)+1)
			for {
				if _, taken := seen[id]; !taken {
					break
				}
				id += "_"
			}
		}
		seen[id] = struct{}{}
		question.ID = id

		output = append(output, question)
	}

	if len(output) == 0 {
		return nil, fmt.Errorf("%w: no valid quiz questions", ErrQualityRejected)
	}
	return output, nil
}

func normalizeText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	parts := strings.Fields(trimmed)
	return strings.Join(parts, " ")
}

func truncateAtWord(value string, maxLen int) string {
	if len(value) <= maxLen || maxLen <= 0 {
		return value
	}
	cut := value[:maxLen]
	lastSpace := strings.LastIndex(cut, " ")
	if lastSpace > maxLen/2 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(cut)
}
