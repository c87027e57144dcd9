package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAI completes prompts against an OpenAI compatible chat completions
// endpoint.
type OpenAI struct {
	client  openai.Client
	baseURL string
	model   string
	log     *slog.Logger
}

func NewOpenAI(baseURL, apiKey, model string, httpClient *http.Client, logger *slog.Logger) *OpenAI {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL + "/"),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &OpenAI{
		client:  openai.NewClient(opts...),
		baseURL: baseURL,
		model:   model,
		log:     logger,
	}
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(prompt)},
				},
			},
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return "", fmt.Errorf("chat completion: %d %s: %w", apiErr.StatusCode, apiErr.Message, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("completion response contained no choices")
	}

	if o.log != nil {
		o.log.Debug("chat completion", "provider", ProviderOpenAI, "model", o.model)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
