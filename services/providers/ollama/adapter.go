// Package ollama adapts a local or remote Ollama server for text mode.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/upb/apicenter/services/providers"
)

const defaultBaseURL = "http://localhost:11434"

// Adapter implements text generation against the Ollama chat API
type Adapter struct {
	client *api.Client
}

// New creates a new Ollama adapter. APIKey is unused.
func New(config providers.ProviderConfig) (*Adapter, error) {
	config = config.WithDefaults(defaultBaseURL)

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", config.BaseURL, err)
	}

	return &Adapter{
		client: api.NewClient(base, &http.Client{Timeout: config.Timeout}),
	}, nil
}

// Invoke sends one non-streaming chat request.
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (providers.Raw, error) {
	if req.Mode != providers.ModeText {
		return nil, providers.NewProviderError(string(providers.Ollama), "UNSUPPORTED_MODE",
			string(req.Mode)+" mode is not available", 0, false, nil)
	}

	chatReq, err := ChatRequest(req)
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Ollama), "INVALID_OPTIONS", err.Error(), 0, false, err)
	}

	var out strings.Builder
	err = a.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, handleError(req.Model, err)
	}
	return providers.Text(out.String()), nil
}

// ChatRequest converts a request into an Ollama chat request. System text is
// folded into the first user message because not every local model honours a
// system role.
func ChatRequest(req *providers.Request) (*api.ChatRequest, error) {
	conv := req.Prompt.Conversation()
	opts := req.Options.TextOrZero()

	system := conv.System
	if opts.System != "" {
		system = opts.System
	}

	messages := make([]api.Message, 0, len(conv.Messages))
	folded := system == ""
	for _, m := range conv.Messages {
		content := m.Content
		if !folded && m.Role == providers.RoleUser {
			content = fmt.Sprintf("[System: %s]\n\n%s", system, content)
			folded = true
		}
		messages = append(messages, api.Message{Role: string(m.Role), Content: content})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
	}

	if opts.Format != "" {
		format := opts.Format
		if format == "json" {
			format = `"json"`
		}
		if !json.Valid([]byte(format)) {
			return nil, fmt.Errorf("format must be \"json\" or a JSON schema")
		}
		chatReq.Format = json.RawMessage(format)
	}
	if opts.KeepAlive != "" {
		d, err := time.ParseDuration(opts.KeepAlive)
		if err != nil {
			return nil, fmt.Errorf("invalid keep_alive %q: %w", opts.KeepAlive, err)
		}
		chatReq.KeepAlive = &api.Duration{Duration: d}
	}

	modelOpts := make(map[string]any)
	if opts.Temperature != nil {
		modelOpts["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		modelOpts["top_p"] = *opts.TopP
	}
	if opts.MaxTokens != nil {
		modelOpts["num_predict"] = *opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		modelOpts["stop"] = opts.Stop
	}
	if len(modelOpts) > 0 {
		chatReq.Options = modelOpts
	}

	return chatReq, nil
}

func handleError(model string, err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		if statusErr.StatusCode == http.StatusNotFound {
			msg = fmt.Sprintf("%s (pull it first with: ollama pull %s)", msg, model)
		}
		return providers.NewProviderError(
			string(providers.Ollama),
			"API_ERROR",
			msg,
			statusErr.StatusCode,
			providers.RetryableStatus(statusErr.StatusCode),
			err,
		)
	}
	return providers.NewProviderError(string(providers.Ollama), "HTTP_ERROR", "HTTP request failed", 0, true, err)
}
