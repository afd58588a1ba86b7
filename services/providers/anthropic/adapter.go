// Package anthropic adapts the Anthropic Messages API for text mode.
package anthropic

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/upb/apicenter/services/providers"
)

const (
	defaultBaseURL = "https://api.anthropic.com"

	// DefaultMaxTokens is sent when the caller sets no limit; the API
	// requires one.
	DefaultMaxTokens = 4096
)

// Adapter implements text generation against the Anthropic API
type Adapter struct {
	client sdk.Client
}

// New creates a new Anthropic adapter
func New(config providers.ProviderConfig) *Adapter {
	config = config.WithDefaults(defaultBaseURL)

	return &Adapter{
		client: sdk.NewClient(
			option.WithAPIKey(config.APIKey),
			option.WithBaseURL(config.BaseURL),
			option.WithMaxRetries(config.MaxRetries),
			option.WithRequestTimeout(config.Timeout),
		),
	}
}

// Invoke sends one Messages request. The reply is returned as content blocks.
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (providers.Raw, error) {
	if req.Mode != providers.ModeText {
		return nil, providers.NewProviderError(string(providers.Anthropic), "UNSUPPORTED_MODE",
			string(req.Mode)+" mode is not available", 0, false, nil)
	}

	msg, err := a.client.Messages.New(ctx, MessageParams(req))
	if err != nil {
		return nil, handleError(err)
	}
	return ContentBlocks(msg), nil
}

// MessageParams converts a request into Messages API parameters. System text
// travels in the dedicated system field.
func MessageParams(req *providers.Request) sdk.MessageNewParams {
	conv := req.Prompt.Conversation()
	opts := req.Options.TextOrZero()

	system := conv.System
	if opts.System != "" {
		system = opts.System
	}

	messages := make([]sdk.MessageParam, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == providers.RoleAssistant {
			messages = append(messages, sdk.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, sdk.NewUserMessage(block))
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		Messages:  messages,
		MaxTokens: DefaultMaxTokens,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = int64(*opts.MaxTokens)
	}
	if opts.Temperature != nil {
		params.Temperature = sdk.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = sdk.Float(*opts.TopP)
	}
	if len(opts.Stop) > 0 {
		params.StopSequences = opts.Stop
	}
	return params
}

// ContentBlocks keeps the block structure of a reply; the dispatcher decides
// which block is the answer.
func ContentBlocks(msg *sdk.Message) providers.ContentBlocks {
	if msg == nil {
		return nil
	}
	blocks := make(providers.ContentBlocks, 0, len(msg.Content))
	for _, b := range msg.Content {
		blocks = append(blocks, providers.ContentBlock{Type: b.Type, Text: b.Text})
	}
	return blocks
}

func handleError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return providers.NewProviderError(
			string(providers.Anthropic),
			"API_ERROR",
			apiErr.Error(),
			apiErr.StatusCode,
			providers.RetryableStatus(apiErr.StatusCode),
			err,
		)
	}
	return providers.NewProviderError(string(providers.Anthropic), "HTTP_ERROR", "HTTP request failed", 0, true, err)
}
