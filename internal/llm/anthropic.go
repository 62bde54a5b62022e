package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// jsonInstruction is appended to the system prompt in JSON mode; the
// messages API has no response_format switch.
const jsonInstruction = "\n\n반드시 하나의 JSON 객체만 출력하세요."

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Anthropic is a messages API client.
type Anthropic struct {
	*transport
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(opts Options) (*Anthropic, error) {
	t, err := newTransport(opts, "anthropic", defaultAnthropicBaseURL)
	if err != nil {
		return nil, err
	}
	return &Anthropic{transport: t}, nil
}

// Complete sends req. A request with only a system prompt is sent as a user
// turn, since the messages API requires at least one message.
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	body := anthropicRequest{
		Model:     a.model,
		MaxTokens: defaultMaxTokens,
		System:    req.System,
	}
	user := req.User
	if user == "" {
		body.System, user = "", req.System
	}
	if req.JSON {
		if body.System != "" {
			body.System += jsonInstruction
		} else {
			user += jsonInstruction
		}
	}
	body.Messages = []anthropicMessage{{Role: "user", Content: user}}
	if a.temperature > 0 {
		temp := a.temperature
		body.Temperature = &temp
	}
	return a.withRetries(ctx, func(ctx context.Context) (string, error) {
		return a.doRequest(ctx, body)
	})
}

func (a *Anthropic) doRequest(ctx context.Context, req anthropicRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.baseURL, "/")+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("llm request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		_ = json.Unmarshal(data, &apiErr)
		return "", statusError(resp.StatusCode, data, apiErr.Error.Message)
	}

	var out anthropicResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

var _ Generator = (*Anthropic)(nil)
