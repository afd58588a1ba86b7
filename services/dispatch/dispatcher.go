package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/upb/apicenter/services"
	"github.com/upb/apicenter/services/providers"
	"go.uber.org/zap"
)

// Recorder receives one call per attempt and one per finished dispatch.
type Recorder interface {
	RecordAttempt(mode providers.Mode, provider providers.Name, model string, ok bool, elapsed time.Duration)
	RecordDispatch(mode providers.Mode, fallbackIndex int, exhausted bool)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for attempt diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// WithFailureHook registers a callback invoked for every failed attempt, in
// order, whether or not a later attempt succeeds.
func WithFailureHook(fn func(AttemptFailure)) Option {
	return func(d *Dispatcher) {
		d.onFailure = fn
	}
}

// Dispatcher runs a primary attempt and, on failure, each fallback in order
// until one succeeds. It holds no per-call state and may be shared.
type Dispatcher struct {
	resolver  providers.Resolver
	logger    *zap.Logger
	recorder  Recorder
	onFailure func(AttemptFailure)
}

// New creates a Dispatcher that looks adapters up in resolver.
func New(resolver providers.Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver: resolver,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes primary and then fallbacks, strictly one at a time, and
// returns the first success. Configuration problems in any attempt are
// reported before a single adapter is called. When every attempt fails the
// error is an *ExhaustedError holding one failure per attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, primary Attempt, fallbacks []Attempt) (*Outcome, error) {
	attempts := make([]Attempt, 0, len(fallbacks)+1)
	attempts = append(attempts, primary)
	attempts = append(attempts, fallbacks...)

	adapters, err := d.plan(attempts)
	if err != nil {
		return nil, err
	}

	var failures []AttemptFailure
	for i, a := range attempts {
		index := i - 1
		if i == 0 {
			index = PrimaryIndex
		}

		var s step
		if cerr := ctx.Err(); cerr != nil {
			s = failed(a, index, fmt.Errorf("skipped: %w", cerr))
		} else {
			if index != PrimaryIndex {
				d.logger.Info("trying fallback provider",
					zap.Int("fallback", index),
					zap.String("provider", a.Provider.String()),
					zap.String("model", a.Model))
			}
			s = d.execute(ctx, a, adapters[i], index)
		}

		if s.ok {
			if index != PrimaryIndex {
				d.logger.Info("fallback provider succeeded",
					zap.Int("fallback", index),
					zap.String("provider", a.Provider.String()),
					zap.String("model", a.Model),
					zap.Int("failed_attempts", len(failures)))
			}
			d.recordDispatch(a.Mode, index, false)
			return &Outcome{
				Result:   s.result,
				Provider: a.Provider,
				Model:    a.Model,
				Index:    index,
				Failures: failures,
			}, nil
		}

		failures = append(failures, s.failure)
		d.logFailure(s.failure)
		if d.onFailure != nil {
			d.onFailure(s.failure)
		}
	}

	exhausted := &ExhaustedError{Mode: primary.Mode, Failures: failures}
	d.logger.Error("all providers failed",
		zap.String("mode", string(primary.Mode)),
		zap.Int("attempts", exhausted.Attempts()),
		zap.String("summary", exhausted.Error()))
	d.recordDispatch(primary.Mode, len(fallbacks)-1, true)
	return nil, exhausted
}

// plan validates every attempt and resolves its adapter.
func (d *Dispatcher) plan(attempts []Attempt) ([]providers.Adapter, error) {
	mode := attempts[0].Mode
	if !mode.Valid() {
		return nil, configurationError("unknown mode %q", mode)
	}

	adapters := make([]providers.Adapter, len(attempts))
	for i, a := range attempts {
		pos := label(i - 1)
		if a.Mode != mode {
			return nil, configurationError("%s uses %s mode but the primary uses %s mode", pos, a.Mode, mode)
		}
		if strings.TrimSpace(a.Model) == "" {
			return nil, configurationError("%s: model is required", pos)
		}
		if err := a.Input.Validate(mode); err != nil {
			return nil, services.WrapConfiguration(fmt.Sprintf("%s: invalid prompt", pos), err)
		}
		adapter, err := d.resolver.Resolve(mode, a.Provider)
		if err != nil {
			return nil, services.WrapConfiguration(fmt.Sprintf("%s: cannot use provider %q", pos, a.Provider), err)
		}
		adapters[i] = adapter
	}
	return adapters, nil
}

// execute runs one attempt and normalizes its result. A panicking adapter is
// turned into a failure.
func (d *Dispatcher) execute(ctx context.Context, a Attempt, adapter providers.Adapter, index int) (s step) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s = failed(a, index, services.WrapInternal("adapter panicked", fmt.Errorf("%v", r)))
		}
		if d.recorder != nil {
			d.recorder.RecordAttempt(a.Mode, a.Provider, a.Model, s.ok, time.Since(start))
		}
	}()

	raw, err := adapter.Invoke(ctx, &providers.Request{
		Provider: a.Provider,
		Model:    a.Model,
		Mode:     a.Mode,
		Prompt:   a.Input,
		Options:  a.Options,
	})
	if err != nil {
		return failed(a, index, err)
	}

	result, err := Normalize(a.Mode, raw)
	if err != nil {
		return failed(a, index, err)
	}
	return succeeded(result)
}

func (d *Dispatcher) logFailure(f AttemptFailure) {
	fields := []zap.Field{
		zap.String("attempt", f.Label()),
		zap.String("provider", f.Provider.String()),
		zap.String("model", f.Model),
		zap.Bool("retryable", providers.IsRetryable(f.Err)),
		zap.Error(f.Err),
	}
	if f.Index == PrimaryIndex {
		d.logger.Warn("primary provider failed", fields...)
		return
	}
	d.logger.Warn("fallback provider failed", fields...)
}

func (d *Dispatcher) recordDispatch(mode providers.Mode, index int, exhausted bool) {
	if d.recorder != nil {
		d.recorder.RecordDispatch(mode, index, exhausted)
	}
}

// Text dispatches a text prompt to primary, falling back to each target in
// order.
func (d *Dispatcher) Text(ctx context.Context, prompt providers.Prompt, primary Target, fallbacks ...Target) (*Outcome, error) {
	return d.forMode(ctx, providers.ModeText, prompt, primary, fallbacks)
}

// Image dispatches an image prompt.
func (d *Dispatcher) Image(ctx context.Context, prompt string, primary Target, fallbacks ...Target) (*Outcome, error) {
	return d.forMode(ctx, providers.ModeImage, providers.TextPrompt(prompt), primary, fallbacks)
}

// Audio dispatches a speech synthesis prompt.
func (d *Dispatcher) Audio(ctx context.Context, prompt string, primary Target, fallbacks ...Target) (*Outcome, error) {
	return d.forMode(ctx, providers.ModeAudio, providers.TextPrompt(prompt), primary, fallbacks)
}

func (d *Dispatcher) forMode(ctx context.Context, mode providers.Mode, prompt providers.Prompt, primary Target, fallbacks []Target) (*Outcome, error) {
	attempt := func(t Target) Attempt {
		return Attempt{
			Provider: t.Provider,
			Model:    t.Model,
			Mode:     mode,
			Input:    prompt,
			Options:  t.Options,
		}
	}

	rest := make([]Attempt, len(fallbacks))
	for i, t := range fallbacks {
		rest[i] = attempt(t)
	}
	return d.Dispatch(ctx, attempt(primary), rest)
}
