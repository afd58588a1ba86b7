package providers

// Options carries the per-mode generation parameters for one attempt. Only
// the block matching the attempt's mode is read; adapters ignore fields their
// vendor has no equivalent for.
type Options struct {
	Text  *TextOptions  `json:"text,omitempty"`
	Image *ImageOptions `json:"image,omitempty"`
	Audio *AudioOptions `json:"audio,omitempty"`
}

// TextOptions are the chat generation parameters.
type TextOptions struct {
	MaxTokens   *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP        *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stop        []string `json:"stop,omitempty"`

	// System replaces any system text extracted from the conversation.
	System string `json:"system,omitempty"`

	// Format and KeepAlive are read by ollama only.
	Format    string `json:"format,omitempty"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

// ImageOptions are the image generation parameters. Size, N, Quality, Style
// and ResponseFormat are openai parameters; the rest belong to stability.
// Stability receives Samples as is, but only its first artifact is returned.
type ImageOptions struct {
	Size           string `json:"size,omitempty"`
	N              *int   `json:"n,omitempty" validate:"omitempty,gt=0,lte=10,single_inline"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty" validate:"omitempty,oneof=url b64_json"`

	Width          *int     `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height         *int     `json:"height,omitempty" validate:"omitempty,gt=0"`
	CFGScale       *float64 `json:"cfg_scale,omitempty" validate:"omitempty,gte=0,lte=35"`
	Steps          *int     `json:"steps,omitempty" validate:"omitempty,gt=0"`
	Samples        *int     `json:"samples,omitempty" validate:"omitempty,gt=0"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
}

// AudioOptions are the speech synthesis parameters. VoiceGender and
// AudioEncoding are google parameters; the rest belong to elevenlabs.
type AudioOptions struct {
	VoiceID         string   `json:"voice_id,omitempty"`
	OutputFormat    string   `json:"output_format,omitempty"`
	LanguageCode    string   `json:"language_code,omitempty"`
	Seed            *int     `json:"seed,omitempty"`
	Stability       *float64 `json:"stability,omitempty" validate:"omitempty,gte=0,lte=1"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty" validate:"omitempty,gte=0,lte=1"`
	Style           *float64 `json:"style,omitempty" validate:"omitempty,gte=0,lte=1"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
	Speed           *float64 `json:"speed,omitempty" validate:"omitempty,gt=0"`

	VoiceGender   string `json:"voice_gender,omitempty" validate:"omitempty,oneof=MALE FEMALE NEUTRAL"`
	AudioEncoding string `json:"audio_encoding,omitempty" validate:"omitempty,oneof=MP3 LINEAR16 OGG_OPUS MULAW ALAW"`
}

// TextOrZero returns the text block or an empty one.
func (o Options) TextOrZero() TextOptions {
	if o.Text == nil {
		return TextOptions{}
	}
	return *o.Text
}

// ImageOrZero returns the image block or an empty one.
func (o Options) ImageOrZero() ImageOptions {
	if o.Image == nil {
		return ImageOptions{}
	}
	return *o.Image
}

// AudioOrZero returns the audio block or an empty one.
func (o Options) AudioOrZero() AudioOptions {
	if o.Audio == nil {
		return AudioOptions{}
	}
	return *o.Audio
}
