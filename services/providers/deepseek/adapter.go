// Package deepseek adapts the DeepSeek chat API, which speaks the OpenAI
// wire format.
package deepseek

import (
	"github.com/upb/apicenter/services/providers"
	"github.com/upb/apicenter/services/providers/openai"
)

// DefaultBaseURL is the public DeepSeek endpoint.
const DefaultBaseURL = "https://api.deepseek.com"

// New creates a text-only adapter pointed at DeepSeek.
func New(config providers.ProviderConfig) *openai.Adapter {
	return openai.New(config.WithDefaults(DefaultBaseURL), openai.WithName(providers.DeepSeek), openai.TextOnly())
}
