package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"cherry2k/internal/cherryerr"
	"cherry2k/internal/config"
	"cherry2k/internal/provider/sse"
)

const anthropicAPIBase = "https://api.anthropic.com/v1"
const anthropicVersion = "2023-06-01"
const anthropicDefaultMaxTokens = 4096

// AnthropicProvider talks to Anthropic's Messages API over its typed
// SSE event stream (message_start / content_block_delta / message_stop),
// grounded on the teacher's AnthropicProvider.parseSSEStream.
type AnthropicProvider struct {
	apiKey string
	model  string
	client *http.Client
}

// NewAnthropicProvider constructs an adapter from config.
func NewAnthropicProvider(cfg *config.AnthropicConfig) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *AnthropicProvider) ProviderID() string { return "anthropic" }

func (p *AnthropicProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return &cherryerr.ConfigError{Kind: cherryerr.ConfigMissingField, Field: "anthropic.api_key"}
	}
	return nil
}

func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, anthropicAPIBase+"/models", nil)
	if err != nil {
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderUnavailable, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()
	return classifyAnthropicStatus(p.ProviderID(), resp)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete issues a streaming Messages API request and assembles the
// result from Anthropic's typed event stream.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest, onDelta StreamCallback) (*CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	var systemPrompt string
	var turns []anthropicMessage
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += m.Content
			continue
		}
		turns = append(turns, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = int(*req.MaxTokens)
	}

	body := map[string]interface{}{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   turns,
		"stream":     true,
	}
	if systemPrompt != "" {
		body["system"] = systemPrompt
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIBase+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	log.Printf("[anthropic] streaming request model=%s", model)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderUnavailable, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyAnthropicStatus(p.ProviderID(), resp)
	}

	var content bytes.Buffer
	var usage Usage

	err = sse.Scan(resp.Body, func(ev sse.Event) error {
		var event map[string]interface{}
		if decodeErr := sse.DecodeJSON(ev, &event); decodeErr != nil {
			return &cherryerr.ProviderError{Kind: cherryerr.ProviderParseError, Provider: p.ProviderID(), Message: decodeErr.Error(), Cause: decodeErr}
		}

		eventType, _ := event["type"].(string)
		switch eventType {
		case "message_start":
			if msg, ok := event["message"].(map[string]interface{}); ok {
				if u, ok := msg["usage"].(map[string]interface{}); ok {
					usage.PromptTokens = int(floatField(u, "input_tokens"))
				}
			}

		case "content_block_delta":
			if delta, ok := event["delta"].(map[string]interface{}); ok {
				if deltaType, _ := delta["type"].(string); deltaType == "text_delta" {
					if text, ok := delta["text"].(string); ok && text != "" {
						content.WriteString(text)
						if onDelta != nil {
							onDelta(StreamEvent{Delta: text})
						}
					}
				}
			}

		case "message_delta":
			if u, ok := event["usage"].(map[string]interface{}); ok {
				if ot := int(floatField(u, "output_tokens")); ot > 0 {
					usage.CompletionTokens = ot
				}
			}

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			if onDelta != nil {
				onDelta(StreamEvent{Done: true, Usage: &usage})
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

	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &CompletionResponse{Content: content.String(), Usage: usage}, nil
}

func floatField(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func classifyAnthropicStatus(providerID string, resp *http.Response) error {
	return classifyOpenAIStatus(providerID, resp)
}
