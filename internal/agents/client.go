package agents

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/gibbonas/MemAgent/internal/config"
)

const (
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultChatHTTPTimeout = 60 * time.Second
	maxClientRetries       = 2
)

func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultChatHTTPTimeout}
}

// Completion is the outcome of one chat-completion call: the assistant text
// and the total tokens the call consumed.
type Completion struct {
	Text   string
	Tokens int
}

// CallChatCompletion runs one chat completion against the configured
// OpenAI-compatible endpoint. The model argument overrides nothing else in
// cfg; an empty model is an error because every agent has its own model knob.
func CallChatCompletion(ctx context.Context, httpClient *http.Client, cfg config.LLMConfig, model string, messages []openaigo.ChatCompletionMessageParamUnion) (Completion, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Completion{}, fmt.Errorf("llm config incomplete: api_key is required")
	}
	if strings.TrimSpace(model) == "" {
		return Completion{}, fmt.Errorf("llm config incomplete: model is required")
	}
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	client := openaigo.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(maxClientRetries),
		option.WithRequestTimeout(DefaultChatHTTPTimeout),
	)

	resp, err := client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(model),
		Messages: messages,
	})
	if err != nil {
		return Completion{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("llm returned empty choices")
	}
	return Completion{
		Text:   resp.Choices[0].Message.Content,
		Tokens: int(resp.Usage.TotalTokens),
	}, nil
}

// extractJSONFromText strips a markdown code fence if present and trims to
// the outermost JSON object, mirroring how models tend to wrap structured
// output.
func extractJSONFromText(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "```") {
		rest := strings.TrimSpace(strings.TrimPrefix(raw, "```"))
		if i := strings.Index(rest, "\n"); i >= 0 {
			rest = rest[i+1:]
		}
		if j := strings.LastIndex(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		raw = strings.TrimSpace(rest)
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return ""
	}
	return raw[start : end+1]
}
