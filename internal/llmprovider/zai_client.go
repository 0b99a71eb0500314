package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"parallax/internal/logging"
)

// zaiBaseURL and zaiModel mirror the teacher's perception.DefaultZAIConfig
// coding-optimized endpoint and default model, reused here as Parallax's
// self-hosted ("local") planner backend so Provider=local degrades to a real
// completion call rather than going straight to FallbackPlan.
const (
	zaiBaseURL = "https://api.z.ai/api/coding/paas/v4"
	zaiModel   = "glm-4.7"
)

type zaiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type zaiChatRequest struct {
	Model    string           `json:"model"`
	Messages []zaiChatMessage `json:"messages"`
}

type zaiChatResponse struct {
	Choices []struct {
		Message zaiChatMessage `json:"message"`
	} `json:"choices"`
}

// ZAICompleter is a minimal non-streaming client for Z.AI's OpenAI-compatible
// chat completions endpoint, used as the completion function behind
// NewLocalProvider.
type ZAICompleter struct {
	apiKey string
	model  string
	client *http.Client
}

// NewZAICompleter creates a completer bound to apiKey, falling back to the
// coding-optimized default model when model is empty.
func NewZAICompleter(apiKey, model string) *ZAICompleter {
	if model == "" {
		model = zaiModel
	}
	return &ZAICompleter{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Complete satisfies the func(ctx, prompt) (string, error) shape
// NewLocalProvider expects.
func (c *ZAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := zaiChatRequest{
		Model: c.model,
		Messages: []zaiChatMessage{
			{Role: "user", Content: prompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal zai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, zaiBaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build zai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPI, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read zai response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status %d", ErrRateLimit, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, string(body))
	}

	var parsed zaiChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in zai response", ErrParse)
	}
	logging.LLMDebug("zai completion: %d bytes", len(parsed.Choices[0].Message.Content))
	return parsed.Choices[0].Message.Content, nil
}
