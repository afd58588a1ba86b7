// Package elevenlabs adapts the ElevenLabs text-to-speech REST API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/apicenter/services/providers"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"

	// DefaultVoiceID is used when the request names no voice.
	DefaultVoiceID = "JBFqnCBsd6RMkjVDRZzb"

	// DefaultOutputFormat is used when the request names no format.
	DefaultOutputFormat = "mp3_44100_128"
)

// Adapter implements speech synthesis against ElevenLabs
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// New creates a new ElevenLabs adapter
func New(config providers.ProviderConfig) *Adapter {
	config = config.WithDefaults(defaultBaseURL)
	return &Adapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Invoke synthesizes the prompt and returns the encoded audio bytes.
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (providers.Raw, error) {
	if req.Mode != providers.ModeAudio {
		return nil, providers.NewProviderError(string(providers.ElevenLabs), "UNSUPPORTED_MODE",
			string(req.Mode)+" mode is not available", 0, false, nil)
	}

	body, err := json.Marshal(BuildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(string(providers.ElevenLabs), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(req), bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(string(providers.ElevenLabs), "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/*")
	httpReq.Header.Set("xi-api-key", a.config.APIKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(string(providers.ElevenLabs), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(string(providers.ElevenLabs), "READ_ERROR", "Failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(httpResp.StatusCode, respBody)
	}
	return providers.Binary(respBody), nil
}

func (a *Adapter) endpoint(req *providers.Request) string {
	opts := req.Options.AudioOrZero()
	voice := opts.VoiceID
	if voice == "" {
		voice = DefaultVoiceID
	}
	format := opts.OutputFormat
	if format == "" {
		format = DefaultOutputFormat
	}

	q := url.Values{}
	q.Set("output_format", format)
	return strings.TrimRight(a.config.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voice) + "?" + q.Encode()
}

// BuildRequest converts a request into the synthesis body. VoiceSettings is
// only populated when at least one voice setting was given.
func BuildRequest(req *providers.Request) SpeechRequest {
	opts := req.Options.AudioOrZero()

	out := SpeechRequest{
		Text:         req.Prompt.PlainText(),
		ModelID:      req.Model,
		LanguageCode: opts.LanguageCode,
		Seed:         opts.Seed,
	}

	settings := VoiceSettings{
		Stability:       opts.Stability,
		SimilarityBoost: opts.SimilarityBoost,
		Style:           opts.Style,
		UseSpeakerBoost: opts.UseSpeakerBoost,
		Speed:           opts.Speed,
	}
	if settings != (VoiceSettings{}) {
		out.VoiceSettings = &settings
	}
	return out
}

// handleErrorResponse handles ElevenLabs error responses. The API reports
// errors either as {"detail": {"status", "message"}} or {"detail": "text"}.
func handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		var detail errorDetail
		if json.Unmarshal(errResp.Detail, &detail) == nil && detail.Message != "" {
			code := detail.Status
			if code == "" {
				code = "API_ERROR"
			}
			return providers.NewProviderError(string(providers.ElevenLabs), code, detail.Message,
				statusCode, providers.RetryableStatus(statusCode), errors.New(detail.Message))
		}
		var text string
		if json.Unmarshal(errResp.Detail, &text) == nil && text != "" {
			return providers.NewProviderError(string(providers.ElevenLabs), "API_ERROR", text,
				statusCode, providers.RetryableStatus(statusCode), errors.New(text))
		}
	}

	return providers.NewProviderError(string(providers.ElevenLabs), "UNKNOWN_ERROR",
		fmt.Sprintf("status %d: %s", statusCode, providers.ErrorBody(body)),
		statusCode, providers.RetryableStatus(statusCode), nil)
}

// ElevenLabs-specific request/response types

type SpeechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	LanguageCode  string         `json:"language_code,omitempty"`
	Seed          *int           `json:"seed,omitempty"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

type VoiceSettings struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
