package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/retry"
	"github.com/joss/chapterd/pkg/genai"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter calls the OpenRouter chat completions API (OpenAI wire format).
type OpenRouter struct {
	fetcher *retry.Controller
	baseURL string
}

func NewOpenRouter(fetcher *retry.Controller) *OpenRouter {
	return NewOpenRouterWithBaseURL(fetcher, defaultOpenRouterBaseURL)
}

// NewOpenRouterWithBaseURL overrides the endpoint (for tests).
func NewOpenRouterWithBaseURL(fetcher *retry.Controller, baseURL string) *OpenRouter {
	return &OpenRouter{fetcher: fetcher, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (o *OpenRouter) ID() string   { return "openrouter" }
func (o *OpenRouter) Name() string { return "OpenRouter" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// ProcessSubtitles sends the transcript as a chat completion and returns the
// chapter text.
func (o *OpenRouter) ProcessSubtitles(ctx context.Context, req *genai.Request) (*domain.ChapterResult, error) {
	if req.Credentials.APIKey == "" {
		return nil, fmt.Errorf("openrouter: missing API key")
	}

	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserContent(req.Text, req.Instructions)},
		},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+req.Credentials.APIKey)

	resp, err := o.fetcher.Fetch(ctx, retry.Options{
		Method: "POST",
		URL:    o.baseURL + "/chat/completions",
		Header: header,
		Body:   jsonBody,
	}, req.CallID, req.TabID, retry.DefaultMaxRetries)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("OpenRouter API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	// OpenRouter reports some failures inside a 200 body.
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("OpenRouter API error %d: %s", resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenRouter API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("malformed response: no choices")
	}

	choice := parsed.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("response blocked by content filter")
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return nil, fmt.Errorf("malformed response: empty choice")
	}

	return &domain.ChapterResult{
		Chapters:     text,
		FinishReason: choice.FinishReason,
		Model:        req.Model,
	}, nil
}

var _ genai.Capability = (*OpenRouter)(nil)
