package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/upb/apicenter/services/providers"
)

// CredentialsPathEnv overrides the credentials file search.
const CredentialsPathEnv = "APICENTER_CREDENTIALS_PATH"

// Credentials is the on-disk key store, grouped by mode then provider:
//
//	{"modes": {"text": {"providers": {"openai": {"api_key": "sk-..."}}}}}
type Credentials struct {
	Modes map[string]ModeCredentials `json:"modes"`
}

// ModeCredentials holds the provider entries of one mode.
type ModeCredentials struct {
	Providers map[string]ProviderCredentials `json:"providers"`
}

// ProviderCredentials is one provider entry.
type ProviderCredentials struct {
	APIKey       string `json:"api_key"`
	Organization string `json:"organization,omitempty"`
}

// Lookup finds the first entry for a provider, scanning modes in their
// declared order. Entries without an API key are skipped.
func (c Credentials) Lookup(name providers.Name) (ProviderCredentials, bool) {
	for _, mode := range providers.Modes {
		entry, ok := c.Modes[string(mode)].Providers[string(name)]
		if ok && entry.APIKey != "" {
			return entry, true
		}
	}
	return ProviderCredentials{}, false
}

// CredentialsPaths returns the candidate locations in lookup order. An
// explicit APICENTER_CREDENTIALS_PATH is the only candidate when set.
func CredentialsPaths() []string {
	if p := os.Getenv(CredentialsPathEnv); p != "" {
		return []string{p}
	}
	paths := []string{"credentials.json"}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths,
			filepath.Join(home, ".apicenter", "credentials.json"),
			filepath.Join(home, ".config", "apicenter", "credentials.json"),
		)
	}
	return paths
}

// LoadCredentials reads the first credentials file found. No file at all
// yields empty credentials; an explicit path that does not exist or any
// malformed file is an error.
func LoadCredentials() (Credentials, error) {
	explicit := os.Getenv(CredentialsPathEnv) != ""
	for _, path := range CredentialsPaths() {
		creds, err := ReadCredentials(path)
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			continue
		}
		return creds, err
	}
	return Credentials{}, nil
}

// ReadCredentials parses one credentials file.
func ReadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return creds, nil
}
