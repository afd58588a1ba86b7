package providers

import (
	"fmt"
	"strings"
)

// Mode is the kind of generation an attempt performs.
type Mode string

const (
	ModeText  Mode = "text"
	ModeImage Mode = "image"
	ModeAudio Mode = "audio"
)

// Modes lists every mode in a stable order.
var Modes = []Mode{ModeText, ModeImage, ModeAudio}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeText, ModeImage, ModeAudio:
		return true
	}
	return false
}

// ParseMode converts a user supplied string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// Name identifies a vendor. The set is closed; adding a vendor means adding a
// constant here and a case in Registry.Resolve.
type Name string

const (
	OpenAI     Name = "openai"
	Anthropic  Name = "anthropic"
	Ollama     Name = "ollama"
	DeepSeek   Name = "deepseek"
	Stability  Name = "stability"
	ElevenLabs Name = "elevenlabs"
	Google     Name = "google"
)

// Names lists every known vendor.
var Names = []Name{OpenAI, Anthropic, Ollama, DeepSeek, Stability, ElevenLabs, Google}

// ParseName normalizes a provider identifier. Unknown names are returned as
// is so the registry can report them as unsupported for the requested mode.
func ParseName(s string) Name {
	return Name(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether n is in the closed vendor set.
func (n Name) Known() bool {
	for _, k := range Names {
		if k == n {
			return true
		}
	}
	return false
}

func (n Name) String() string {
	return string(n)
}
