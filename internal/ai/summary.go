package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Fixed texts shown in place of a summary when generation fails.
const (
	FallbackNoSummary = "No se pudo generar el resumen."
	FallbackError     = "Hubo un error al conectar con la IA de Gemini."
)

// ErrBudgetExceeded means the identity has used up today's token budget.
var ErrBudgetExceeded = errors.New("summary token budget exceeded")

const summaryPrompt = `Actúa como un profesor experto de la Universidad Nacional de Ingeniería (UNI).
Curso: %s
Tema: %s

Genera un resumen educativo muy conciso (máximo 2 oraciones) explicando qué se estudia en este tema y por qué es importante para la ingeniería.
Tono: Académico, motivador y claro.
Idioma: Español.`

// SummaryPrompt builds the prompt for a topic summary.
func SummaryPrompt(topicName, courseName string) string {
	return fmt.Sprintf(summaryPrompt, strings.TrimSpace(courseName), strings.TrimSpace(topicName))
}

// Summarizer writes one-to-two sentence topic summaries.
type Summarizer struct {
	provider Provider
	model    string
	budget   Budget
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithSummaryModel names the model to request.
func WithSummaryModel(model string) SummarizerOption {
	return func(s *Summarizer) {
		s.model = model
	}
}

// WithBudget caps daily token use per identity.
func WithBudget(b Budget) SummarizerOption {
	return func(s *Summarizer) {
		s.budget = b
	}
}

// NewSummarizer creates a summarizer. A nil provider makes every call fail
// with ErrNoProvider, so callers get the fallback text without a request.
func NewSummarizer(provider Provider, opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{provider: provider}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate asks the provider for a summary of topicName within courseName.
func (s *Summarizer) Generate(ctx context.Context, userID, topicName, courseName string) (string, error) {
	if s.provider == nil {
		return "", ErrNoProvider
	}
	if s.budget != nil {
		ok, err := s.budget.Allow(ctx, userID)
		if err != nil {
			slog.Warn("summary budget check failed, allowing", "user_id", userID, "error", err)
		} else if !ok {
			return "", ErrBudgetExceeded
		}
	}

	resp, err := s.provider.Complete(ctx, CompletionRequest{
		Model:    s.model,
		Messages: []Message{{Role: "user", Content: SummaryPrompt(topicName, courseName)}},
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	if s.budget != nil {
		if err := s.budget.Record(ctx, userID, resp.TotalTokens()); err != nil {
			slog.Warn("failed to record summary tokens", "user_id", userID, "error", err)
		}
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Fallback returns the text shown instead of a summary after err.
func (s *Summarizer) Fallback(err error) string {
	if errors.Is(err, ErrEmptyResponse) {
		return FallbackNoSummary
	}
	return FallbackError
}
