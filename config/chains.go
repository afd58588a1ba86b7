package config

import (
	"fmt"
	"os"

	"github.com/upb/apicenter/services/providers"
	"gopkg.in/yaml.v3"
)

// ChainEntry is one fallback target in a default chain.
type ChainEntry struct {
	Provider providers.Name `yaml:"provider"`
	Model    string         `yaml:"model"`
}

// Chains maps a mode to its ordered default fallbacks. The file looks like:
//
//	text:
//	  - provider: anthropic
//	    model: claude-3-5-sonnet-latest
//	  - provider: ollama
//	    model: llama3.2
type Chains map[providers.Mode][]ChainEntry

// For returns the chain of a mode with any entry equal to the primary
// removed.
func (c Chains) For(mode providers.Mode, primary providers.Name, model string) []ChainEntry {
	entries := c[mode]
	out := make([]ChainEntry, 0, len(entries))
	for _, e := range entries {
		if e.Provider == primary && e.Model == model {
			continue
		}
		out = append(out, e)
	}
	return out
}

// LoadChains reads the chains file. An empty path yields no chains.
func LoadChains(path string) (Chains, error) {
	if path == "" {
		return Chains{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseChains(data)
}

// ParseChains decodes and validates chain YAML.
func ParseChains(data []byte) (Chains, error) {
	var raw map[string][]ChainEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse chains: %w", err)
	}

	chains := make(Chains, len(raw))
	for key, entries := range raw {
		mode, err := providers.ParseMode(key)
		if err != nil {
			return nil, err
		}
		for i, e := range entries {
			e.Provider = providers.ParseName(string(e.Provider))
			if !e.Provider.Known() {
				return nil, fmt.Errorf("%s chain entry %d: unknown provider %q", mode, i, e.Provider)
			}
			if !supports(mode, e.Provider) {
				return nil, fmt.Errorf("%s chain entry %d: provider %q is not supported for %s mode", mode, i, e.Provider, mode)
			}
			if e.Model == "" {
				return nil, fmt.Errorf("%s chain entry %d: model is required", mode, i)
			}
			entries[i] = e
		}
		chains[mode] = entries
	}
	return chains, nil
}

func supports(mode providers.Mode, name providers.Name) bool {
	for _, n := range providers.Supported(mode) {
		if n == name {
			return true
		}
	}
	return false
}
