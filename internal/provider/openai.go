package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"cherry2k/internal/cherryerr"
	"cherry2k/internal/config"
	"cherry2k/internal/provider/sse"
)

// OpenAIProvider talks to OpenAI's (or an OpenAI-compatible) chat
// completions endpoint over SSE streaming.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAIProvider constructs an adapter from config.
func NewOpenAIProvider(cfg *config.OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAIProvider) ProviderID() string { return "openai" }

func (p *OpenAIProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return &cherryerr.ConfigError{Kind: cherryerr.ConfigMissingField, Field: "openai.api_key"}
	}
	return nil
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderUnavailable, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	return classifyOpenAIStatus(p.ProviderID(), resp)
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete issues a streaming chat completion request, grounded on the
// teacher's generateWithStreamOAuth/parseSSEStream pair, adapted to the
// OpenAI "data: {...}" / "data: [DONE]" SSE dialect.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest, onDelta StreamCallback) (*CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openAIChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIChatMessage{Role: string(m.Role), Content: m.Content})
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   true,
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		body["max_tokens"] = *req.MaxTokens
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	log.Printf("[openai] streaming request model=%s", model)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderUnavailable, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyOpenAIStatus(p.ProviderID(), resp)
	}

	var content bytes.Buffer
	var usage Usage

	err = sse.Scan(resp.Body, func(ev sse.Event) error {
		var chunk openAIStreamChunk
		if decodeErr := sse.DecodeJSON(ev, &chunk); decodeErr != nil {
			// Malformed JSON is logged and skipped, not fatal: a single
			// bad frame must not tear down the rest of the stream.
			log.Printf("[openai] skipping malformed stream frame: %v", decodeErr)
			return nil
		}
		if chunk.Usage != nil {
			usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			content.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(StreamEvent{Delta: choice.Delta.Content})
			}
		}
		return nil
	})
	if err != nil {
		if pe, ok := err.(*cherryerr.ProviderError); ok {
			return nil, pe
		}
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderStreamInterrupted, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}

	if onDelta != nil {
		onDelta(StreamEvent{Done: true, Usage: &usage})
	}

	return &CompletionResponse{Content: content.String(), Usage: usage}, nil
}

// classifyOpenAIStatus maps an HTTP response's status code to
// cherry2k's closed ProviderError taxonomy, per spec.md §4.2.
func classifyOpenAIStatus(providerID string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	message := string(bodyBytes)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderInvalidAPIKey, Provider: providerID, Message: message}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := int64(60)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
				retryAfter = secs
			}
		}
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderRateLimited, Provider: providerID, RetryAfterSec: retryAfter, Message: message}
	case resp.StatusCode >= 500:
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderUnavailable, Provider: providerID, Message: message}
	default:
		return &cherryerr.ProviderError{
			Kind:     cherryerr.ProviderRequestFailed,
			Provider: providerID,
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, message),
		}
	}
}
