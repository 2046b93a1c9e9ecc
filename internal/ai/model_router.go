package ai

import "strings"

type TaskKind string

const (
	TaskSummary TaskKind = "summary"
	TaskQuiz    TaskKind = "quiz"
	TaskChat    TaskKind = "chat"
)

// ModelProfile is the per task generation setting. InputBudget is the
// character limit applied to document text before it is sent upstream.
type ModelProfile struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
	InputBudget     int
}

type ModelRouterConfig struct {
	SummaryModel string
	QuizModel    string
	ChatModel    string
}

type ModelRouter struct {
	config ModelRouterConfig
}

func NewModelRouter(config ModelRouterConfig) *ModelRouter {
	if strings.TrimSpace(config.SummaryModel) == "" {
		config.SummaryModel = DefaultGeminiModel
	}
	if strings.TrimSpace(config.QuizModel) == "" {
		config.QuizModel = DefaultGeminiModel
	}
	if strings.TrimSpace(config.ChatModel) == "" {
		config.ChatModel = DefaultGeminiModel
	}
	return &ModelRouter{config: config}
}

func (r *ModelRouter) Select(task TaskKind) ModelProfile {
	switch task {
	case TaskQuiz:
		return ModelProfile{
			Model:       r.config.QuizModel,
			InputBudget: 50000,
		}
	case TaskChat:
		return ModelProfile{
			Model:       r.config.ChatModel,
			InputBudget: 30000,
		}
	default:
		return ModelProfile{
			Model:       r.config.SummaryModel,
			InputBudget: 50000,
		}
	}
}
