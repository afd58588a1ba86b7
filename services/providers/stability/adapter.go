// Package stability adapts the Stability AI v1 text-to-image REST API.
package stability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/upb/apicenter/services/providers"
)

const (
	defaultBaseURL = "https://api.stability.ai"

	// sdxlEngine serves every model name in the SDXL family.
	sdxlEngine = "stable-diffusion-xl-1024-v1-0"

	defaultSize     = 1024
	defaultCFGScale = 7.0
	defaultSteps    = 30
	defaultSamples  = 1
)

// Adapter implements image generation against the Stability API
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// New creates a new Stability adapter
func New(config providers.ProviderConfig) *Adapter {
	config = config.WithDefaults(defaultBaseURL)
	return &Adapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Invoke generates images and returns the first artifact's bytes.
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (providers.Raw, error) {
	if req.Mode != providers.ModeImage {
		return nil, providers.NewProviderError(string(providers.Stability), "UNSUPPORTED_MODE",
			string(req.Mode)+" mode is not available", 0, false, nil)
	}

	body, err := json.Marshal(BuildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Stability), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	endpoint := strings.TrimRight(a.config.BaseURL, "/") + EndpointPath(req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Stability), "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Stability), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Stability), "READ_ERROR", "Failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var resp generationResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, providers.NewProviderError(string(providers.Stability), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, false, err)
	}
	return firstArtifact(resp)
}

// EndpointPath maps a model name onto its generation engine path.
func EndpointPath(model string) string {
	engine := model
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "stable-diffusion-xl") || strings.HasPrefix(m, "sdxl") {
		engine = sdxlEngine
	}
	return "/v1/generation/" + engine + "/text-to-image"
}

// BuildRequest converts a request into the generation body, applying the
// engine defaults for any unset option.
func BuildRequest(req *providers.Request) GenerationRequest {
	opts := req.Options.ImageOrZero()

	out := GenerationRequest{
		TextPrompts: []TextPrompt{{Text: req.Prompt.PlainText()}},
		Height:      intOr(opts.Height, defaultSize),
		Width:       intOr(opts.Width, defaultSize),
		CFGScale:    defaultCFGScale,
		Steps:       intOr(opts.Steps, defaultSteps),
		Samples:     intOr(opts.Samples, defaultSamples),
	}
	if opts.CFGScale != nil {
		out.CFGScale = *opts.CFGScale
	}
	if opts.NegativePrompt != "" {
		weight := -1.0
		out.TextPrompts = append(out.TextPrompts, TextPrompt{Text: opts.NegativePrompt, Weight: &weight})
	}
	return out
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func firstArtifact(resp generationResponse) (providers.Raw, error) {
	if len(resp.Artifacts) == 0 {
		return nil, providers.NewProviderError(string(providers.Stability), "EMPTY_RESPONSE", "no images were generated", 0, false, nil)
	}
	art := resp.Artifacts[0]
	if art.FinishReason == "CONTENT_FILTERED" || art.FinishReason == "ERROR" {
		return nil, providers.NewProviderError(string(providers.Stability), art.FinishReason,
			"generation finished with "+art.FinishReason, 0, false, nil)
	}
	data, err := base64.StdEncoding.DecodeString(art.Base64)
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Stability), "DECODE_ERROR", "invalid base64 artifact", 0, false, err)
	}
	return providers.Binary(data), nil
}

// handleErrorResponse handles Stability error responses
func handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		return providers.NewProviderError(string(providers.Stability), "UNKNOWN_ERROR",
			fmt.Sprintf("status %d: %s", statusCode, providers.ErrorBody(body)),
			statusCode, providers.RetryableStatus(statusCode), err)
	}

	return providers.NewProviderError(
		string(providers.Stability),
		errResp.Name,
		errResp.Message,
		statusCode,
		providers.RetryableStatus(statusCode),
		errors.New(errResp.Message),
	)
}

// Stability-specific request/response types

type GenerationRequest struct {
	TextPrompts []TextPrompt `json:"text_prompts"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	CFGScale    float64      `json:"cfg_scale"`
	Steps       int          `json:"steps"`
	Samples     int          `json:"samples"`
}

type TextPrompt struct {
	Text   string   `json:"text"`
	Weight *float64 `json:"weight,omitempty"`
}

type generationResponse struct {
	Artifacts []artifact `json:"artifacts"`
}

type artifact struct {
	Base64       string `json:"base64"`
	Seed         int64  `json:"seed"`
	FinishReason string `json:"finishReason"`
}

type errorResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}
