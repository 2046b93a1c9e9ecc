package contextbuilder

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/iago/studyhub-back/internal/ai"
	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/policy"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// QuizMix is the number of questions requested per type.
type QuizMix struct {
	MultipleChoice int
	TrueFalse      int
	ShortAnswer    int
}

func DefaultQuizMix() QuizMix {
	return QuizMix{MultipleChoice: 5, TrueFalse: 3, ShortAnswer: 2}
}

// Builder turns user input into provider requests: prompts, input budgets
// and history windowing.
type Builder struct {
	router    *ai.ModelRouter
	templates *template.Template
	quizMix   QuizMix
}

func NewBuilder(router *ai.ModelRouter) (*Builder, error) {
	if router == nil {
		router = ai.NewModelRouter(ai.ModelRouterConfig{})
	}
	templates, err := template.ParseFS(promptFS, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	return &Builder{router: router, templates: templates, quizMix: DefaultQuizMix()}, nil
}

func (b *Builder) BuildSummary(text string) (ai.GenerateRequest, error) {
	if err := policy.RequireText("text", text); err != nil {
		return ai.GenerateRequest{}, err
	}
	profile := b.router.Select(ai.TaskSummary)

	system, err := b.render("summary_system.tmpl", nil)
	if err != nil {
		return ai.GenerateRequest{}, err
	}
	user, err := b.render("summary_user.tmpl", map[string]any{
		"Text": policy.TruncateRunes(text, profile.InputBudget),
	})
	if err != nil {
		return ai.GenerateRequest{}, err
	}
	return newRequest(profile, system, []ai.Message{{Role: "user", Text: user}}), nil
}

func (b *Builder) BuildQuiz(text string) (ai.GenerateRequest, error) {
	if err := policy.RequireText("text", text); err != nil {
		return ai.GenerateRequest{}, err
	}
	profile := b.router.Select(ai.TaskQuiz)

	mix := b.quizMix
	system, err := b.render("quiz_system.tmpl", map[string]any{
		"Questions":      mix.MultipleChoice + mix.TrueFalse + mix.ShortAnswer,
		"MultipleChoice": mix.MultipleChoice,
		"TrueFalse":      mix.TrueFalse,
		"ShortAnswer":    mix.ShortAnswer,
	})
	if err != nil {
		return ai.GenerateRequest{}, err
	}
	user, err := b.render("quiz_user.tmpl", map[string]any{
		"Text": policy.TruncateRunes(text, profile.InputBudget),
	})
	if err != nil {
		return ai.GenerateRequest{}, err
	}
	return newRequest(profile, system, []ai.Message{{Role: "user", Text: user}}), nil
}

// BuildChat keeps the last ten turns. Assistant turns are sent with the
// provider's "model" role and every other turn as "user".
func (b *Builder) BuildChat(messages []domain.ChatMessage, documentContext string) (ai.GenerateRequest, error) {
	if len(messages) == 0 {
		return ai.GenerateRequest{}, domain.InvalidInput("No messages provided")
	}
	profile := b.router.Select(ai.TaskChat)

	system, err := b.render("chat_system.tmpl", map[string]any{
		"Context": policy.TruncateRunes(strings.TrimSpace(documentContext), profile.InputBudget),
	})
	if err != nil {
		return ai.GenerateRequest{}, err
	}

	recent := policy.RecentMessages(messages, policy.ChatHistoryWindow)
	contents := make([]ai.Message, 0, len(recent))
	for _, message := range recent {
		role := "user"
		if message.Role == domain.ChatRoleAssistant {
			role = "model"
		}
		contents = append(contents, ai.Message{Role: role, Text: message.Content})
	}
	return newRequest(profile, system, contents), nil
}

func (b *Builder) render(name string, data any) (string, error) {
	var out bytes.Buffer
	if err := b.templates.ExecuteTemplate(&out, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(out.String()), nil
}

func newRequest(profile ai.ModelProfile, system string, contents []ai.Message) ai.GenerateRequest {
	return ai.GenerateRequest{
		Model:             profile.Model,
		SystemInstruction: system,
		Contents:          contents,
		Temperature:       profile.Temperature,
		MaxOutputTokens:   profile.MaxOutputTokens,
	}
}
