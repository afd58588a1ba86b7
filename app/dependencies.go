package app

import (
	"context"
	"fmt"

	"github.com/upb/apicenter/config"
	"github.com/upb/apicenter/handlers"
	"github.com/upb/apicenter/internal/observability"
	"github.com/upb/apicenter/services/dispatch"
	"github.com/upb/apicenter/services/providers"
	"github.com/upb/apicenter/services/providers/anthropic"
	"github.com/upb/apicenter/services/providers/deepseek"
	"github.com/upb/apicenter/services/providers/elevenlabs"
	"github.com/upb/apicenter/services/providers/google"
	"github.com/upb/apicenter/services/providers/ollama"
	"github.com/upb/apicenter/services/providers/openai"
	"github.com/upb/apicenter/services/providers/stability"
	"github.com/upb/apicenter/services/ratelimit"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Providers
	Registry    *providers.Registry
	RateLimiter *ratelimit.RateLimitService
	Dispatcher  *dispatch.Dispatcher

	// HTTP
	DispatchHandler *handlers.DispatchHandler
	HealthHandler   *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	// Initialize provider registry
	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initDispatcher()
	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Int("adapters", deps.Registry.Count()),
		zap.Bool("metrics", deps.Metrics != nil))
	return deps, nil
}

// initProviders builds an adapter for every configured (mode, provider)
// pair and wraps the rate limited ones.
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry, err := BuildRegistry(&cfg.Providers, d.Logger)
	if err != nil {
		return err
	}

	limits := make(map[providers.Name]ratelimit.Limit, len(cfg.RateLimits))
	for name, l := range cfg.RateLimits {
		limits[name] = ratelimit.Limit{RPS: l.RPS, Burst: l.Burst}
	}
	d.RateLimiter = ratelimit.NewRateLimitService(limits, d.Logger)
	for _, name := range d.RateLimiter.Limited() {
		d.Logger.Info("rate limit enabled",
			zap.String("provider", name.String()),
			zap.Float64("rps", cfg.RateLimits[name].RPS),
			zap.Int("burst", cfg.RateLimits[name].Burst))
	}

	d.Registry = registry.Decorate(d.RateLimiter.Decorator())

	if d.Registry.Count() == 0 {
		d.Logger.Warn("no providers configured")
	}
	return nil
}

// BuildRegistry creates the adapters for every provider the configuration
// enables. A provider serving several modes shares one adapter.
func BuildRegistry(cfg *config.ProvidersConfig, logger *zap.Logger) (*providers.Registry, error) {
	registry := &providers.Registry{}

	install := func(name providers.Name, a providers.Adapter, modes ...providers.Mode) error {
		for _, mode := range modes {
			if err := registry.Set(mode, name, a); err != nil {
				return err
			}
		}
		logger.Info("registered provider", zap.String("provider", name.String()))
		return nil
	}

	for _, name := range cfg.Configured() {
		settings, _ := cfg.Settings(name)
		pc := settings.ProviderConfig()

		var err error
		switch name {
		case providers.OpenAI:
			err = install(name, openai.New(pc), providers.ModeText, providers.ModeImage)
		case providers.Anthropic:
			err = install(name, anthropic.New(pc), providers.ModeText)
		case providers.DeepSeek:
			err = install(name, deepseek.New(pc), providers.ModeText)
		case providers.Ollama:
			var a *ollama.Adapter
			if a, err = ollama.New(pc); err == nil {
				err = install(name, a, providers.ModeText)
			}
		case providers.Stability:
			err = install(name, stability.New(pc), providers.ModeImage)
		case providers.ElevenLabs:
			err = install(name, elevenlabs.New(pc), providers.ModeAudio)
		case providers.Google:
			err = install(name, google.New(pc), providers.ModeAudio)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return registry, nil
}

func (d *Dependencies) initDispatcher() {
	opts := []dispatch.Option{dispatch.WithLogger(d.Logger)}
	if d.Metrics != nil {
		opts = append(opts, dispatch.WithRecorder(d.Metrics))
	}
	d.Dispatcher = dispatch.New(d.Registry, opts...)
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	d.DispatchHandler = handlers.NewDispatchHandler(d.Dispatcher, d.Registry, cfg.Fallback.Chains, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.Registry, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	// Sync logger. Syncing stderr fails on some platforms, so the error is
	// not reported.
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
