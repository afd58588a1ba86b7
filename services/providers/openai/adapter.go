package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/upb/apicenter/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
)

// Option customizes an Adapter.
type Option func(*Adapter)

// WithName reports errors under a different provider name. Used for
// vendors that expose an OpenAI compatible API.
func WithName(name providers.Name) Option {
	return func(a *Adapter) {
		a.name = name
	}
}

// TextOnly disables image generation.
func TextOnly() Option {
	return func(a *Adapter) {
		a.images = false
	}
}

// Adapter implements text and image generation against the OpenAI API
type Adapter struct {
	name   providers.Name
	images bool
	client sdk.Client
}

// New creates a new OpenAI adapter
func New(config providers.ProviderConfig, opts ...Option) *Adapter {
	config = config.WithDefaults(defaultBaseURL)

	a := &Adapter{
		name:   providers.OpenAI,
		images: true,
	}
	for _, opt := range opts {
		opt(a)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(config.MaxRetries),
		option.WithRequestTimeout(config.Timeout),
	}
	if config.OrgID != "" {
		clientOpts = append(clientOpts, option.WithOrganization(config.OrgID))
	}
	a.client = sdk.NewClient(clientOpts...)

	return a
}

// Invoke performs one chat completion or one image generation.
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (providers.Raw, error) {
	switch {
	case req.Mode == providers.ModeText:
		completion, err := a.client.Chat.Completions.New(ctx, ChatParams(req))
		if err != nil {
			return nil, a.handleError(err)
		}
		return a.parseChat(completion)

	case req.Mode == providers.ModeImage && a.images:
		images, err := a.client.Images.Generate(ctx, ImageParams(req))
		if err != nil {
			return nil, a.handleError(err)
		}
		return a.parseImages(images)
	}

	return nil, providers.NewProviderError(string(a.name), "UNSUPPORTED_MODE",
		fmt.Sprintf("%s mode is not available", req.Mode), 0, false, nil)
}

// ChatParams converts a request into chat completion parameters. An explicit
// system option replaces system text taken from the conversation.
func ChatParams(req *providers.Request) sdk.ChatCompletionNewParams {
	conv := req.Prompt.Conversation()
	opts := req.Options.TextOrZero()

	system := conv.System
	if opts.System != "" {
		system = opts.System
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(conv.Messages)+1)
	if system != "" {
		messages = append(messages, sdk.SystemMessage(system))
	}
	for _, m := range conv.Messages {
		if m.Role == providers.RoleAssistant {
			messages = append(messages, sdk.AssistantMessage(m.Content))
			continue
		}
		messages = append(messages, sdk.UserMessage(m.Content))
	}

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = sdk.Int(int64(*opts.MaxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = sdk.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = sdk.Float(*opts.TopP)
	}
	if len(opts.Stop) > 0 {
		params.Stop = sdk.ChatCompletionNewParamsStopUnion{OfStringArray: opts.Stop}
	}
	return params
}

// ImageParams converts a request into image generation parameters.
func ImageParams(req *providers.Request) sdk.ImageGenerateParams {
	opts := req.Options.ImageOrZero()

	params := sdk.ImageGenerateParams{
		Prompt: req.Prompt.PlainText(),
		Model:  sdk.ImageModel(req.Model),
	}
	if opts.N != nil {
		params.N = sdk.Int(int64(*opts.N))
	}
	if opts.Size != "" {
		params.Size = sdk.ImageGenerateParamsSize(opts.Size)
	}
	if opts.Quality != "" {
		params.Quality = sdk.ImageGenerateParamsQuality(opts.Quality)
	}
	if opts.Style != "" {
		params.Style = sdk.ImageGenerateParamsStyle(opts.Style)
	}
	if opts.ResponseFormat != "" {
		params.ResponseFormat = sdk.ImageGenerateParamsResponseFormat(opts.ResponseFormat)
	}
	return params
}

func (a *Adapter) parseChat(completion *sdk.ChatCompletion) (providers.Raw, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return nil, providers.NewProviderError(string(a.name), "EMPTY_RESPONSE", "response has no choices", 0, false, nil)
	}
	return providers.Text(completion.Choices[0].Message.Content), nil
}

// parseImages returns every hosted URL, or the first inline image decoded
// when the caller asked for b64_json.
func (a *Adapter) parseImages(resp *sdk.ImagesResponse) (providers.Raw, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, providers.NewProviderError(string(a.name), "EMPTY_RESPONSE", "response has no images", 0, false, nil)
	}

	if resp.Data[0].B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
		if err != nil {
			return nil, providers.NewProviderError(string(a.name), "DECODE_ERROR", "invalid base64 image", 0, false, err)
		}
		return providers.Binary(data), nil
	}

	urls := make(providers.ImageURLs, 0, len(resp.Data))
	for _, img := range resp.Data {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	return urls, nil
}

// handleError converts SDK errors into provider errors
func (a *Adapter) handleError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return providers.NewProviderError(
			string(a.name),
			"API_ERROR",
			apiErr.Error(),
			apiErr.StatusCode,
			providers.RetryableStatus(apiErr.StatusCode),
			err,
		)
	}
	return providers.NewProviderError(string(a.name), "HTTP_ERROR", "HTTP request failed", 0, true, err)
}
