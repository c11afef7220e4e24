package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"cherry2k/internal/cherryerr"
	"cherry2k/internal/config"
	"cherry2k/internal/provider/ndjson"
)

// OllamaProvider talks to a local Ollama server over its NDJSON
// streaming chat endpoint.
type OllamaProvider struct {
	host   string
	model  string
	client *http.Client
}

// NewOllamaProvider constructs an adapter from config.
func NewOllamaProvider(cfg *config.OllamaConfig) *OllamaProvider {
	return &OllamaProvider{
		host:   cfg.Host,
		model:  cfg.Model,
		client: &http.Client{Timeout: 300 * time.Second},
	}
}

func (p *OllamaProvider) ProviderID() string { return "ollama" }

// ValidateConfig fails only when no host is configured: Ollama needs no
// API key, and whether the host is reachable is left to HealthCheck.
func (p *OllamaProvider) ValidateConfig() error {
	if p.host == "" {
		return &cherryerr.ConfigError{Kind: cherryerr.ConfigMissingField, Field: "ollama.host"}
	}
	return nil
}

func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderUnavailable, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderUnavailable, Provider: p.ProviderID(), Message: "ollama health check failed"}
	}
	return nil
}

// isConnectError reports whether err stems from failing to establish
// the TCP connection at all (server not listening), as opposed to a
// request that reached the server and failed some other way.
func isConnectError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// classifyOllamaStatus maps a non-200 Ollama response to cherry2k's
// closed ProviderError taxonomy, grounded on original_source's
// provider::ollama status-code match (404 -> model-not-found hint,
// 5xx -> Unavailable, otherwise a generic RequestFailed).
func classifyOllamaStatus(providerID string, resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	message := string(bodyBytes)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: providerID, Message: "Model not found. Run: ollama pull <model>"}
	case resp.StatusCode >= 500:
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderUnavailable, Provider: providerID, Message: message}
	default:
		return &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: providerID, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, message)}
	}
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaStreamLine struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// Complete issues a streaming /api/chat request and assembles the
// response from its newline-delimited JSON events.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest, onDelta StreamCallback) (*CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]ollamaChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   true,
	}
	options := map[string]interface{}{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		options["num_predict"] = *req.MaxTokens
	}
	if len(options) > 0 {
		body["options"] = options
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Printf("[ollama] streaming request model=%s", model)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if isConnectError(err) {
			return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderUnavailable, Provider: p.ProviderID(), Message: "Ollama not running. Start with: ollama serve", Cause: err}
		}
		return nil, &cherryerr.ProviderError{Kind: cherryerr.ProviderRequestFailed, Provider: p.ProviderID(), Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyOllamaStatus(p.ProviderID(), resp)
	}

	var content bytes.Buffer
	var usage Usage

	err = ndjson.Scan(resp.Body, func(line []byte) error {
		var chunk ollamaStreamLine
		if decodeErr := ndjson.DecodeJSON(line, &chunk); decodeErr != nil {
			return &cherryerr.ProviderError{Kind: cherryerr.ProviderParseError, Provider: p.ProviderID(), Message: decodeErr.Error(), Cause: decodeErr}
		}

		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			if onDelta != nil {
				onDelta(StreamEvent{Delta: chunk.Message.Content})
			}
		}

		if chunk.Done {
			usage = Usage{
				PromptTokens:     chunk.PromptEvalCount,
				CompletionTokens: chunk.EvalCount,
				TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
			}
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

	return &CompletionResponse{Content: content.String(), Usage: usage}, nil
}
