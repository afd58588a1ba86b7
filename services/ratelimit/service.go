// Package ratelimit applies client-side token buckets to provider adapters so
// a burst of traffic fails over to the next fallback instead of running into
// vendor quotas.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/upb/apicenter/services"
	"github.com/upb/apicenter/services/providers"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CodeRateLimited is the ProviderError code of a denied call.
const CodeRateLimited = "RATE_LIMITED"

// Limit is a token bucket definition. Zero RPS means unlimited.
type Limit struct {
	RPS   float64
	Burst int
}

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimitService holds one limiter per provider. Limiters are shared by
// every mode a provider serves.
type RateLimitService struct {
	limiters map[providers.Name]*rate.Limiter
	logger   *zap.Logger
}

// NewRateLimitService creates a new RateLimitService instance
func NewRateLimitService(limits map[providers.Name]Limit, logger *zap.Logger) *RateLimitService {
	s := &RateLimitService{
		limiters: make(map[providers.Name]*rate.Limiter, len(limits)),
		logger:   logger,
	}
	for name, l := range limits {
		if l.RPS <= 0 {
			continue
		}
		burst := l.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiters[name] = rate.NewLimiter(rate.Limit(l.RPS), burst)
	}
	return s
}

// Limited lists the providers that have a limiter, sorted by name.
func (s *RateLimitService) Limited() []providers.Name {
	out := make([]providers.Name, 0, len(s.limiters))
	for name := range s.limiters {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckLimit takes a token for the provider if one is available now.
func (s *RateLimitService) CheckLimit(name providers.Name) RateLimitResult {
	limiter, ok := s.limiters[name]
	if !ok {
		return RateLimitResult{Allowed: true}
	}

	r := limiter.Reserve()
	if !r.OK() {
		return RateLimitResult{Allowed: false}
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return RateLimitResult{Allowed: false, RetryAfter: delay}
	}
	return RateLimitResult{Allowed: true}
}

// Guard wraps an adapter with the provider's limiter. Providers without a
// limit get the adapter back unchanged.
func (s *RateLimitService) Guard(name providers.Name, adapter providers.Adapter) providers.Adapter {
	if _, ok := s.limiters[name]; !ok {
		return adapter
	}
	return providers.AdapterFunc(func(ctx context.Context, req *providers.Request) (providers.Raw, error) {
		result := s.CheckLimit(name)
		if !result.Allowed {
			s.logger.Debug("provider call rate limited",
				zap.String("provider", name.String()),
				zap.String("mode", string(req.Mode)),
				zap.Duration("retry_after", result.RetryAfter),
			)
			return nil, providers.NewProviderError(
				name.String(),
				CodeRateLimited,
				fmt.Sprintf("client-side limit reached, retry in %s", result.RetryAfter.Round(time.Millisecond)),
				0,
				true,
				services.ErrRateLimitExceeded,
			)
		}
		return adapter.Invoke(ctx, req)
	})
}

// Decorator adapts Guard to Registry.Decorate.
func (s *RateLimitService) Decorator() func(providers.Mode, providers.Name, providers.Adapter) providers.Adapter {
	return func(_ providers.Mode, name providers.Name, a providers.Adapter) providers.Adapter {
		return s.Guard(name, a)
	}
}
