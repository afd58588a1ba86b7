// Package google adapts the Google Cloud Text-to-Speech REST API.
package google

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
	defaultBaseURL = "https://texttospeech.googleapis.com"

	DefaultLanguageCode  = "en-US"
	DefaultVoiceGender   = "NEUTRAL"
	DefaultAudioEncoding = "MP3"
)

// Adapter implements speech synthesis against Google Cloud TTS
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// New creates a new Google TTS adapter
func New(config providers.ProviderConfig) *Adapter {
	config = config.WithDefaults(defaultBaseURL)
	return &Adapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Invoke synthesizes the prompt. The model names the voice, for example
// "en-US-Neural2-A".
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (providers.Raw, error) {
	if req.Mode != providers.ModeAudio {
		return nil, providers.NewProviderError(string(providers.Google), "UNSUPPORTED_MODE",
			string(req.Mode)+" mode is not available", 0, false, nil)
	}

	body, err := json.Marshal(BuildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Google), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	endpoint := strings.TrimRight(a.config.BaseURL, "/") + "/v1/text:synthesize"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Google), "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", a.config.APIKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Google), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Google), "READ_ERROR", "Failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var resp synthesizeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, providers.NewProviderError(string(providers.Google), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, false, err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, providers.NewProviderError(string(providers.Google), "DECODE_ERROR", "invalid base64 audio content", 0, false, err)
	}
	return providers.Binary(audio), nil
}

// BuildRequest converts a request into the synthesize body.
func BuildRequest(req *providers.Request) SynthesizeRequest {
	opts := req.Options.AudioOrZero()

	out := SynthesizeRequest{
		Input: SynthesisInput{Text: req.Prompt.PlainText()},
		Voice: VoiceSelection{
			LanguageCode: orDefault(opts.LanguageCode, DefaultLanguageCode),
			Name:         req.Model,
			SSMLGender:   orDefault(opts.VoiceGender, DefaultVoiceGender),
		},
		AudioConfig: AudioConfig{
			AudioEncoding: orDefault(opts.AudioEncoding, DefaultAudioEncoding),
		},
	}
	if opts.Speed != nil {
		out.AudioConfig.SpeakingRate = *opts.Speed
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// handleErrorResponse handles Google API error envelopes
func handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(string(providers.Google), "UNKNOWN_ERROR",
			fmt.Sprintf("status %d: %s", statusCode, providers.ErrorBody(body)),
			statusCode, providers.RetryableStatus(statusCode), err)
	}

	code := errResp.Error.Status
	if code == "" {
		code = "API_ERROR"
	}
	return providers.NewProviderError(
		string(providers.Google),
		code,
		errResp.Error.Message,
		statusCode,
		providers.RetryableStatus(statusCode),
		errors.New(errResp.Error.Message),
	)
}

// Google-specific request/response types

type SynthesizeRequest struct {
	Input       SynthesisInput `json:"input"`
	Voice       VoiceSelection `json:"voice"`
	AudioConfig AudioConfig    `json:"audioConfig"`
}

type SynthesisInput struct {
	Text string `json:"text"`
}

type VoiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
	SSMLGender   string `json:"ssmlGender,omitempty"`
}

type AudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate,omitempty"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
