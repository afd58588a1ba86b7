package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/apicenter/services/providers"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Providers     ProvidersConfig
	RateLimits    RateLimitsConfig
	Observability ObservabilityConfig
	Fallback      FallbackConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout bounds one dispatch including every fallback attempt.
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// ProviderSettings holds the connection settings for one vendor
type ProviderSettings struct {
	APIKey       string
	BaseURL      string
	Organization string
	Timeout      time.Duration
	MaxRetries   int
}

// ProvidersConfig holds per-vendor configuration. Ollama needs no key and
// is switched on explicitly.
type ProvidersConfig struct {
	OpenAI     ProviderSettings
	Anthropic  ProviderSettings
	DeepSeek   ProviderSettings
	Ollama     ProviderSettings
	Stability  ProviderSettings
	ElevenLabs ProviderSettings
	Google     ProviderSettings

	OllamaEnabled bool
}

// RateLimit is a token bucket for one provider. Zero RPS means unlimited.
type RateLimit struct {
	RPS   float64
	Burst int
}

// RateLimitsConfig maps providers to their client-side limits
type RateLimitsConfig map[providers.Name]RateLimit

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// FallbackConfig holds the default fallback chains used when a request
// does not name its own.
type FallbackConfig struct {
	ChainsPath string
	Chains     Chains
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 180*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 170*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Providers: ProvidersConfig{
			OpenAI:        loadProviderSettings("OPENAI", "https://api.openai.com/v1"),
			Anthropic:     loadProviderSettings("ANTHROPIC", "https://api.anthropic.com"),
			DeepSeek:      loadProviderSettings("DEEPSEEK", "https://api.deepseek.com"),
			Ollama:        loadProviderSettings("OLLAMA", getEnv("OLLAMA_HOST", "http://localhost:11434")),
			Stability:     loadProviderSettings("STABILITY", "https://api.stability.ai"),
			ElevenLabs:    loadProviderSettings("ELEVENLABS", "https://api.elevenlabs.io"),
			Google:        loadProviderSettings("GOOGLE", "https://texttospeech.googleapis.com"),
			OllamaEnabled: getEnvAsBool("OLLAMA_ENABLED", false),
		},
		RateLimits: loadRateLimits(),
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Fallback: FallbackConfig{
			ChainsPath: getEnv("FALLBACK_CHAINS_PATH", ""),
		},
	}

	creds, err := LoadCredentials()
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	cfg.Providers.ApplyCredentials(creds)

	chains, err := LoadChains(cfg.Fallback.ChainsPath)
	if err != nil {
		return nil, fmt.Errorf("fallback chains: %w", err)
	}
	cfg.Fallback.Chains = chains

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}

	// At least one provider is required in production
	if c.IsProduction() && len(c.Providers.Configured()) == 0 {
		return fmt.Errorf("at least one provider must be configured in production")
	}

	for name, limit := range c.RateLimits {
		if limit.RPS < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate limit for %s must not be negative", name)
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Observability.LogFormat != "json" && c.Observability.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", c.Observability.LogFormat)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Settings returns the settings block for a provider.
func (p *ProvidersConfig) Settings(name providers.Name) (ProviderSettings, bool) {
	switch name {
	case providers.OpenAI:
		return p.OpenAI, true
	case providers.Anthropic:
		return p.Anthropic, true
	case providers.DeepSeek:
		return p.DeepSeek, true
	case providers.Ollama:
		return p.Ollama, true
	case providers.Stability:
		return p.Stability, true
	case providers.ElevenLabs:
		return p.ElevenLabs, true
	case providers.Google:
		return p.Google, true
	}
	return ProviderSettings{}, false
}

func (p *ProvidersConfig) settingsPtr(name providers.Name) *ProviderSettings {
	switch name {
	case providers.OpenAI:
		return &p.OpenAI
	case providers.Anthropic:
		return &p.Anthropic
	case providers.DeepSeek:
		return &p.DeepSeek
	case providers.Ollama:
		return &p.Ollama
	case providers.Stability:
		return &p.Stability
	case providers.ElevenLabs:
		return &p.ElevenLabs
	case providers.Google:
		return &p.Google
	}
	return nil
}

// IsConfigured reports whether a provider has what it needs to be called.
func (p *ProvidersConfig) IsConfigured(name providers.Name) bool {
	if name == providers.Ollama {
		return p.OllamaEnabled
	}
	s, ok := p.Settings(name)
	return ok && s.APIKey != ""
}

// Configured lists the configured providers in declaration order.
func (p *ProvidersConfig) Configured() []providers.Name {
	var out []providers.Name
	for _, name := range providers.Names {
		if p.IsConfigured(name) {
			out = append(out, name)
		}
	}
	return out
}

// ApplyCredentials fills API keys and organizations that the environment
// left empty.
func (p *ProvidersConfig) ApplyCredentials(creds Credentials) {
	for _, name := range providers.Names {
		entry, ok := creds.Lookup(name)
		if !ok {
			continue
		}
		s := p.settingsPtr(name)
		if s.APIKey == "" {
			s.APIKey = entry.APIKey
		}
		if s.Organization == "" {
			s.Organization = entry.Organization
		}
	}
}

// ProviderConfig converts settings into the adapter configuration.
func (s ProviderSettings) ProviderConfig() providers.ProviderConfig {
	return providers.ProviderConfig{
		APIKey:     s.APIKey,
		BaseURL:    s.BaseURL,
		Timeout:    s.Timeout,
		MaxRetries: s.MaxRetries,
		OrgID:      s.Organization,
	}
}

func loadProviderSettings(prefix, baseURL string) ProviderSettings {
	return ProviderSettings{
		APIKey:       getEnv(prefix+"_API_KEY", ""),
		BaseURL:      getEnv(prefix+"_BASE_URL", baseURL),
		Organization: getEnv(prefix+"_ORGANIZATION", ""),
		Timeout:      getEnvAsDuration(prefix+"_TIMEOUT", 60*time.Second),
		MaxRetries:   getEnvAsInt(prefix+"_MAX_RETRIES", 0),
	}
}

// loadRateLimits reads RATE_LIMIT_<PROVIDER>_RPS and _BURST for every
// known provider. Providers without an RPS value are left out.
func loadRateLimits() RateLimitsConfig {
	limits := RateLimitsConfig{}
	for _, name := range providers.Names {
		key := "RATE_LIMIT_" + strings.ToUpper(string(name))
		rps := getEnvAsFloat(key+"_RPS", 0)
		if rps == 0 {
			continue
		}
		burst := getEnvAsInt(key+"_BURST", 0)
		if burst == 0 {
			burst = max(1, int(rps))
		}
		limits[name] = RateLimit{RPS: rps, Burst: burst}
	}
	return limits
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
