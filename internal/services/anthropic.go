package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	DefaultAnthropicTemperature = 0.7
	DefaultAnthropicMaxTokens   = 1024
)

// AnthropicService implements ModelBackend for the Anthropic Messages
// API.
type AnthropicService struct {
	apiKey     string
	modelName  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AnthropicChatRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []AnthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
}

type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type AnthropicChatResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []AnthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicService creates a new Anthropic backend instance. An
// empty baseURL uses the public API endpoint.
func NewAnthropicService(apiKey string, modelName string, baseURL string, logger *slog.Logger) *AnthropicService {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicService{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

func (a *AnthropicService) Name() string {
	return "anthropic"
}

// InitModel is a no-op for the hosted API; there is no model to pull.
func (a *AnthropicService) InitModel(ctx context.Context) error {
	return nil
}

// Generate produces a completion for a prompt. The assembled prompt
// already carries persona, knowledge, and history, so it is sent as a
// single user message.
func (a *AnthropicService) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := DefaultAnthropicTemperature
	anthropicReq := AnthropicChatRequest{
		Model:       a.modelName,
		MaxTokens:   DefaultAnthropicMaxTokens,
		Temperature: &temperature,
		Messages: []AnthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	reqBody, err := json.Marshal(anthropicReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &BackendError{
			Kind:    classifyTransport(err),
			Backend: a.Name(),
			Message: "messages request failed",
			Err:     err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &BackendError{
			Kind:    ErrKindConnection,
			Backend: a.Name(),
			Message: "failed to read response body",
			Err:     err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		kind := ErrKindModel
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = ErrKindQuota
		}
		a.logger.Error("Anthropic API returned error",
			"status_code", resp.StatusCode,
			"response_body", string(body))
		return "", &BackendError{
			Kind:    kind,
			Backend: a.Name(),
			Message: fmt.Sprintf("API request failed with status: %d", resp.StatusCode),
		}
	}

	var anthropicResp AnthropicChatResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return "", &BackendError{
			Kind:    ErrKindInvalidResponse,
			Backend: a.Name(),
			Message: "failed to parse response",
			Err:     err,
		}
	}

	if anthropicResp.Error != nil {
		return "", &BackendError{
			Kind:    ErrKindModel,
			Backend: a.Name(),
			Message: anthropicResp.Error.Message,
		}
	}

	var responseText string
	for _, content := range anthropicResp.Content {
		if content.Type == "text" {
			responseText += content.Text
		}
	}

	if responseText == "" {
		return "", &BackendError{
			Kind:    ErrKindInvalidResponse,
			Backend: a.Name(),
			Message: "response contained no text content",
		}
	}

	return responseText, nil
}
