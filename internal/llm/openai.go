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

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    *float64              `json:"temperature,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// OpenAI is a chat completions client.
type OpenAI struct {
	*transport
}

// NewOpenAI creates an OpenAI client.
func NewOpenAI(opts Options) (*OpenAI, error) {
	t, err := newTransport(opts, "openai", defaultOpenAIBaseURL)
	if err != nil {
		return nil, err
	}
	return &OpenAI{transport: t}, nil
}

// Complete sends req as a system (and optional user) message.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	body := openAIRequest{Model: o.model}
	if req.System != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	if req.User != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "user", Content: req.User})
	}
	if o.temperature > 0 {
		temp := o.temperature
		body.Temperature = &temp
	}
	if req.JSON {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return o.withRetries(ctx, func(ctx context.Context) (string, error) {
		return o.doRequest(ctx, body)
	})
}

func (o *OpenAI) doRequest(ctx context.Context, req openAIRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(o.baseURL, "/")+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("llm request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr openAIError
		_ = json.Unmarshal(data, &apiErr)
		return "", statusError(resp.StatusCode, data, apiErr.Error.Message)
	}

	var out openAIResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

var _ Generator = (*OpenAI)(nil)
