package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/upb/apicenter/config"
	"github.com/upb/apicenter/middleware"
	"github.com/upb/apicenter/services/dispatch"
	"github.com/upb/apicenter/services/providers"
	"github.com/upb/apicenter/utils"
	"go.uber.org/zap"
)

// Response headers set on raw audio responses.
const (
	HeaderProvider  = "X-Apicenter-Provider"
	HeaderModel     = "X-Apicenter-Model"
	HeaderFallbacks = "X-Apicenter-Fallbacks"
)

// Dispatcher runs one primary attempt and its fallbacks.
type Dispatcher interface {
	Dispatch(ctx context.Context, primary dispatch.Attempt, fallbacks []dispatch.Attempt) (*dispatch.Outcome, error)
}

// ProviderCatalog reports which providers have adapters.
type ProviderCatalog interface {
	Configured(mode providers.Mode) []providers.Name
}

// MessageRequest is one conversation turn.
type MessageRequest struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content"`
}

// FallbackRequest names one fallback target with its own options.
type FallbackRequest[O any] struct {
	Provider string `json:"provider" validate:"required"`
	Model    string `json:"model" validate:"required"`
	Options  *O     `json:"options,omitempty"`
}

// TextRequest is the body of POST /api/v1/text. Exactly one of Prompt and
// Messages is set. A missing fallbacks key selects the configured default
// chain; an explicit empty list disables fallback.
type TextRequest struct {
	Provider  string                                   `json:"provider" validate:"required"`
	Model     string                                   `json:"model" validate:"required"`
	Prompt    string                                   `json:"prompt,omitempty" validate:"required_without=Messages"`
	Messages  []MessageRequest                         `json:"messages,omitempty" validate:"omitempty,excluded_with=Prompt,dive"`
	Options   *providers.TextOptions                   `json:"options,omitempty"`
	Fallbacks []FallbackRequest[providers.TextOptions] `json:"fallbacks" validate:"omitempty,max=8,dive"`
}

// ImageRequest is the body of POST /api/v1/image.
type ImageRequest struct {
	Provider  string                                    `json:"provider" validate:"required"`
	Model     string                                    `json:"model" validate:"required"`
	Prompt    string                                    `json:"prompt" validate:"required"`
	Options   *providers.ImageOptions                   `json:"options,omitempty"`
	Fallbacks []FallbackRequest[providers.ImageOptions] `json:"fallbacks" validate:"omitempty,max=8,dive"`
}

// AudioRequest is the body of POST /api/v1/audio.
type AudioRequest struct {
	Provider  string                                    `json:"provider" validate:"required"`
	Model     string                                    `json:"model" validate:"required"`
	Prompt    string                                    `json:"prompt" validate:"required"`
	Options   *providers.AudioOptions                   `json:"options,omitempty"`
	Fallbacks []FallbackRequest[providers.AudioOptions] `json:"fallbacks" validate:"omitempty,max=8,dive"`
}

// FailureResponse describes one failed attempt.
type FailureResponse struct {
	Attempt  string `json:"attempt"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Error    string `json:"error"`
}

// DispatchResponse is the JSON body of a successful text or image dispatch.
// Exactly one of Text, URL, URLs and B64 is set, as named by Kind.
type DispatchResponse struct {
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Kind     string            `json:"kind"`
	Text     *string           `json:"text,omitempty"`
	URL      string            `json:"url,omitempty"`
	URLs     []string          `json:"urls,omitempty"`
	B64      string            `json:"b64,omitempty"`
	Failures []FailureResponse `json:"failures"`
}

// ModeProviders lists the providers of one mode.
type ModeProviders struct {
	Supported  []providers.Name `json:"supported"`
	Configured []providers.Name `json:"configured"`
}

// DispatchHandler serves the generation endpoints.
type DispatchHandler struct {
	dispatcher Dispatcher
	catalog    ProviderCatalog
	chains     config.Chains
	logger     *zap.Logger
}

// NewDispatchHandler creates a new DispatchHandler
func NewDispatchHandler(d Dispatcher, catalog ProviderCatalog, chains config.Chains, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: d,
		catalog:    catalog,
		chains:     chains,
		logger:     logger,
	}
}

// HandleText handles POST /api/v1/text
func (h *DispatchHandler) HandleText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !h.decode(w, r, &req) {
		return
	}

	prompt := providers.TextPrompt(req.Prompt)
	if len(req.Messages) > 0 {
		msgs := make([]providers.Message, len(req.Messages))
		for i, m := range req.Messages {
			msgs[i] = providers.Message{Role: providers.Role(strings.ToLower(m.Role)), Content: m.Content}
		}
		prompt = providers.MessagePrompt(msgs...)
	}

	textOpts := func(o *providers.TextOptions) providers.Options { return providers.Options{Text: o} }
	primary, fallbacks := h.attempts(providers.ModeText, prompt, req.Provider, req.Model, textOpts(req.Options))
	if req.Fallbacks != nil {
		fallbacks = explicitFallbacks(providers.ModeText, prompt, req.Fallbacks, textOpts)
	}

	outcome, ok := h.dispatch(w, r, primary, fallbacks)
	if !ok {
		return
	}
	h.writeOutcome(w, outcome)
}

// HandleImage handles POST /api/v1/image
func (h *DispatchHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if !h.decode(w, r, &req) {
		return
	}

	prompt := providers.TextPrompt(req.Prompt)
	imageOpts := func(o *providers.ImageOptions) providers.Options { return providers.Options{Image: o} }
	primary, fallbacks := h.attempts(providers.ModeImage, prompt, req.Provider, req.Model, imageOpts(req.Options))
	if req.Fallbacks != nil {
		fallbacks = explicitFallbacks(providers.ModeImage, prompt, req.Fallbacks, imageOpts)
	}

	outcome, ok := h.dispatch(w, r, primary, fallbacks)
	if !ok {
		return
	}
	h.writeOutcome(w, outcome)
}

// HandleAudio handles POST /api/v1/audio. The body of a successful response
// is the encoded audio itself.
func (h *DispatchHandler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	var req AudioRequest
	if !h.decode(w, r, &req) {
		return
	}

	prompt := providers.TextPrompt(req.Prompt)
	audioOpts := func(o *providers.AudioOptions) providers.Options { return providers.Options{Audio: o} }
	primary, fallbacks := h.attempts(providers.ModeAudio, prompt, req.Provider, req.Model, audioOpts(req.Options))
	if req.Fallbacks != nil {
		fallbacks = explicitFallbacks(providers.ModeAudio, prompt, req.Fallbacks, audioOpts)
	}

	outcome, ok := h.dispatch(w, r, primary, fallbacks)
	if !ok {
		return
	}

	// The options that matter are those of the attempt that answered.
	opts := primary.Options.Audio
	if outcome.UsedFallback() {
		opts = fallbacks[outcome.Index].Options.Audio
	}

	w.Header().Set(HeaderProvider, outcome.Provider.String())
	w.Header().Set(HeaderModel, outcome.Model)
	w.Header().Set(HeaderFallbacks, strconv.Itoa(len(outcome.Failures)))
	if err := utils.WriteBinary(w, http.StatusOK, AudioContentType(outcome.Provider, opts), outcome.Result.Data); err != nil {
		h.logger.Error("failed to write audio response", zap.Error(err))
	}
}

// HandleProviders handles GET /api/v1/providers
func (h *DispatchHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	out := make(map[providers.Mode]ModeProviders, len(providers.Modes))
	for _, mode := range providers.Modes {
		configured := h.catalog.Configured(mode)
		if configured == nil {
			configured = []providers.Name{}
		}
		out[mode] = ModeProviders{
			Supported:  providers.Supported(mode),
			Configured: configured,
		}
	}
	if err := utils.WriteOK(w, out); err != nil {
		h.logger.Error("failed to write providers response", zap.Error(err))
	}
}

func (h *DispatchHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := utils.DecodeJSON(w, r, dst); err != nil {
		HandleValidationError(w, err, h.logger)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleValidationError(w, err, h.logger)
		return false
	}
	return true
}

// attempts builds the primary attempt and the default chain for its mode.
func (h *DispatchHandler) attempts(mode providers.Mode, prompt providers.Prompt, provider, model string, opts providers.Options) (dispatch.Attempt, []dispatch.Attempt) {
	primary := dispatch.Attempt{
		Provider: providers.ParseName(provider),
		Model:    model,
		Mode:     mode,
		Input:    prompt,
		Options:  opts,
	}

	chain := h.chains.For(mode, primary.Provider, model)
	fallbacks := make([]dispatch.Attempt, len(chain))
	for i, e := range chain {
		fallbacks[i] = dispatch.Attempt{
			Provider: e.Provider,
			Model:    e.Model,
			Mode:     mode,
			Input:    prompt,
		}
	}
	return primary, fallbacks
}

func explicitFallbacks[O any](mode providers.Mode, prompt providers.Prompt, targets []FallbackRequest[O], wrap func(*O) providers.Options) []dispatch.Attempt {
	out := make([]dispatch.Attempt, len(targets))
	for i, t := range targets {
		out[i] = dispatch.Attempt{
			Provider: providers.ParseName(t.Provider),
			Model:    t.Model,
			Mode:     mode,
			Input:    prompt,
			Options:  wrap(t.Options),
		}
	}
	return out
}

func (h *DispatchHandler) dispatch(w http.ResponseWriter, r *http.Request, primary dispatch.Attempt, fallbacks []dispatch.Attempt) (*dispatch.Outcome, bool) {
	requestID := middleware.GetRequestIDFromContext(r.Context())
	h.logger.Debug("dispatching",
		zap.String("request_id", requestID),
		zap.String("mode", string(primary.Mode)),
		zap.String("provider", primary.Provider.String()),
		zap.String("model", primary.Model),
		zap.Int("fallbacks", len(fallbacks)))

	outcome, err := h.dispatcher.Dispatch(r.Context(), primary, fallbacks)
	if err != nil {
		h.logger.Warn("dispatch failed",
			zap.String("request_id", requestID),
			zap.String("mode", string(primary.Mode)),
			zap.Error(err))
		if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			HandleTimeout(w, err, h.logger)
			return nil, false
		}
		HandleServiceError(w, err, h.logger)
		return nil, false
	}
	return outcome, true
}

func (h *DispatchHandler) writeOutcome(w http.ResponseWriter, o *dispatch.Outcome) {
	if err := utils.WriteOK(w, NewDispatchResponse(o)); err != nil {
		h.logger.Error("failed to write dispatch response", zap.Error(err))
	}
}

// NewDispatchResponse converts an outcome into its JSON shape. Bytes results
// are base64 encoded.
func NewDispatchResponse(o *dispatch.Outcome) DispatchResponse {
	resp := DispatchResponse{
		Provider: o.Provider.String(),
		Model:    o.Model,
		Kind:     string(o.Result.Kind),
		Failures: failureResponses(o.Failures),
	}
	switch o.Result.Kind {
	case dispatch.KindText:
		text := o.Result.Text
		resp.Text = &text
	case dispatch.KindURL:
		resp.URL = o.Result.URL
	case dispatch.KindURLs:
		resp.URLs = o.Result.URLs
	case dispatch.KindBytes:
		resp.B64 = base64.StdEncoding.EncodeToString(o.Result.Data)
	}
	return resp
}

func failureResponses(failures []dispatch.AttemptFailure) []FailureResponse {
	out := make([]FailureResponse, len(failures))
	for i, f := range failures {
		out[i] = FailureResponse{
			Attempt:  f.Label(),
			Provider: f.Provider.String(),
			Model:    f.Model,
			Error:    f.Message,
		}
	}
	return out
}

// AudioContentType picks the MIME type for the encoding the answering
// provider was asked for.
func AudioContentType(provider providers.Name, opts *providers.AudioOptions) string {
	var o providers.AudioOptions
	if opts != nil {
		o = *opts
	}

	switch provider {
	case providers.Google:
		switch o.AudioEncoding {
		case "LINEAR16":
			return "audio/wav"
		case "OGG_OPUS":
			return "audio/ogg"
		case "MULAW", "ALAW":
			return "audio/basic"
		}
	case providers.ElevenLabs:
		format := strings.ToLower(o.OutputFormat)
		switch {
		case strings.HasPrefix(format, "pcm"):
			return "audio/L16"
		case strings.HasPrefix(format, "ulaw"), strings.HasPrefix(format, "alaw"):
			return "audio/basic"
		case strings.HasPrefix(format, "opus"):
			return "audio/ogg"
		}
	}
	return "audio/mpeg"
}
