package providers

import (
	"fmt"

	"github.com/upb/apicenter/services"
)

// Registry maps every supported (mode, provider) pair to its adapter. It is a
// plain value built once at startup; a nil slot means the provider is known
// but has no credentials.
type Registry struct {
	OpenAIText    Adapter
	AnthropicText Adapter
	OllamaText    Adapter
	DeepSeekText  Adapter

	OpenAIImage    Adapter
	StabilityImage Adapter

	ElevenLabsAudio Adapter
	GoogleAudio     Adapter
}

// Resolver looks up the adapter for a (mode, provider) pair.
type Resolver interface {
	Resolve(mode Mode, name Name) (Adapter, error)
}

// slot returns the field backing a supported pair, or false if the pair is
// outside the closed set.
func (r *Registry) slot(mode Mode, name Name) (*Adapter, bool) {
	switch mode {
	case ModeText:
		switch name {
		case OpenAI:
			return &r.OpenAIText, true
		case Anthropic:
			return &r.AnthropicText, true
		case Ollama:
			return &r.OllamaText, true
		case DeepSeek:
			return &r.DeepSeekText, true
		}
	case ModeImage:
		switch name {
		case OpenAI:
			return &r.OpenAIImage, true
		case Stability:
			return &r.StabilityImage, true
		}
	case ModeAudio:
		switch name {
		case ElevenLabs:
			return &r.ElevenLabsAudio, true
		case Google:
			return &r.GoogleAudio, true
		}
	}
	return nil, false
}

// Resolve returns the adapter for the pair. Pairs outside the closed set fail
// with an unsupported error; supported pairs without an adapter fail with a
// not configured error.
func (r *Registry) Resolve(mode Mode, name Name) (Adapter, error) {
	s, ok := r.slot(mode, name)
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeUnsupported,
			fmt.Sprintf("provider %q is not supported for %s mode", name, mode), nil).
			WithDetail("supported", Supported(mode))
	}
	if *s == nil {
		return nil, services.NewDomainError(services.ErrorTypeNotConfigured,
			fmt.Sprintf("provider %q has no credentials for %s mode", name, mode), nil)
	}
	return *s, nil
}

// Supported lists the providers of the closed set for a mode.
func Supported(mode Mode) []Name {
	var r Registry
	out := make([]Name, 0, len(Names))
	for _, n := range Names {
		if _, ok := r.slot(mode, n); ok {
			out = append(out, n)
		}
	}
	return out
}

// Configured lists the providers that have an adapter for a mode.
func (r *Registry) Configured(mode Mode) []Name {
	out := make([]Name, 0, len(Names))
	for _, n := range Supported(mode) {
		s, _ := r.slot(mode, n)
		if *s != nil {
			out = append(out, n)
		}
	}
	return out
}

// Count returns the number of configured (mode, provider) pairs.
func (r *Registry) Count() int {
	total := 0
	for _, m := range Modes {
		total += len(r.Configured(m))
	}
	return total
}

// Set installs an adapter for a supported pair.
func (r *Registry) Set(mode Mode, name Name, a Adapter) error {
	s, ok := r.slot(mode, name)
	if !ok {
		return fmt.Errorf("provider %q is not supported for %s mode", name, mode)
	}
	*s = a
	return nil
}

// Decorate returns a copy whose configured adapters are wrapped by fn.
func (r *Registry) Decorate(fn func(mode Mode, name Name, a Adapter) Adapter) *Registry {
	out := *r
	for _, m := range Modes {
		for _, n := range r.Configured(m) {
			s, _ := out.slot(m, n)
			*s = fn(m, n, *s)
		}
	}
	return &out
}
