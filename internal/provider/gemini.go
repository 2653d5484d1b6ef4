// Package provider implements the chapter-generation capability per LLM
// backend: Gemini and OpenRouter over the shared retry controller.
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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Gemini calls the Google Generative Language API.
type Gemini struct {
	fetcher *retry.Controller
	baseURL string
}

// NewGemini creates the Gemini capability over the retry controller.
func NewGemini(fetcher *retry.Controller) *Gemini {
	return NewGeminiWithBaseURL(fetcher, defaultGeminiBaseURL)
}

// NewGeminiWithBaseURL overrides the endpoint (for tests).
func NewGeminiWithBaseURL(fetcher *retry.Controller, baseURL string) *Gemini {
	return &Gemini{fetcher: fetcher, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (g *Gemini) ID() string   { return "gemini" }
func (g *Gemini) Name() string { return "Google Gemini" }

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// ProcessSubtitles sends the transcript and returns the chapter text.
func (g *Gemini) ProcessSubtitles(ctx context.Context, req *genai.Request) (*domain.ChapterResult, error) {
	if req.Credentials.APIKey == "" {
		return nil, fmt.Errorf("gemini: missing API key")
	}

	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: buildUserContent(req.Text, req.Instructions)}}},
		},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, req.Model, req.Credentials.APIKey)
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := g.fetcher.Fetch(ctx, retry.Options{
		Method: "POST",
		URL:    url,
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

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("Gemini API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return nil, fmt.Errorf("Gemini API error %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("Gemini API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("request blocked by safety filters: %s", parsed.PromptFeedback.BlockReason)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("malformed response: no candidates")
	}

	cand := parsed.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return nil, fmt.Errorf("response blocked by safety filters")
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, fmt.Errorf("malformed response: empty candidate")
	}

	return &domain.ChapterResult{
		Chapters:     text,
		FinishReason: cand.FinishReason,
		Model:        req.Model,
	}, nil
}

var _ genai.Capability = (*Gemini)(nil)
