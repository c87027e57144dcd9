package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rancher/gitpanel/internal/store"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultOpenAIURL   = "https://api.openai.com/v1"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("chat: api key not configured")

// Client completes a single prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// New builds a Client for settings. Provider defaults to gemini; any other
// provider name is treated as an OpenAI compatible endpoint.
func New(ctx context.Context, settings store.Settings, apiKey string, logger *slog.Logger) (Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	provider := strings.ToLower(strings.TrimSpace(settings.Provider))
	if provider == "" {
		provider = ProviderGemini
	}

	switch provider {
	case ProviderGemini:
		return NewGemini(ctx, apiKey, settings.ModelName, logger)
	default:
		return NewOpenAI(settings.BaseURL, apiKey, settings.ModelName, &http.Client{Timeout: 60 * time.Second}, logger), nil
	}
}

// Prompt prefixes query with a description of the repository state.
func Prompt(query, branch, status string) string {
	var b strings.Builder
	b.WriteString("You are a git assistant embedded in a developer's editor.\n")
	if branch != "" {
		fmt.Fprintf(&b, "Current branch: %s\n", branch)
	}
	if status != "" {
		fmt.Fprintf(&b, "Working tree status:\n%s\n", status)
	}
	b.WriteString("\n")
	b.WriteString(query)
	return b.String()
}
