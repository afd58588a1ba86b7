package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/apicenter/services"
	"github.com/upb/apicenter/services/providers"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
)

// MockAdapter is a mock implementation of providers.Adapter
type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Invoke(ctx context.Context, req *providers.Request) (providers.Raw, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(providers.Raw), args.Error(1)
}

// MockRecorder is a mock implementation of Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordAttempt(mode providers.Mode, provider providers.Name, model string, ok bool, elapsed time.Duration) {
	m.Called(mode, provider, model, ok, elapsed)
}

func (m *MockRecorder) RecordDispatch(mode providers.Mode, fallbackIndex int, exhausted bool) {
	m.Called(mode, fallbackIndex, exhausted)
}

// spyAdapter records every model it is called with. Models listed in fail
// return that error; models listed in raw return that value; anything else
// answers with a text naming the model.
type spyAdapter struct {
	calls []string
	fail  map[string]error
	raw   map[string]providers.Raw
}

func newSpy() *spyAdapter {
	return &spyAdapter{fail: map[string]error{}, raw: map[string]providers.Raw{}}
}

func (s *spyAdapter) Invoke(_ context.Context, req *providers.Request) (providers.Raw, error) {
	s.calls = append(s.calls, req.Model)
	if err, ok := s.fail[req.Model]; ok {
		return nil, err
	}
	if raw, ok := s.raw[req.Model]; ok {
		return raw, nil
	}
	return providers.Text("answer from " + req.Model), nil
}

type resolverFunc func(providers.Mode, providers.Name) (providers.Adapter, error)

func (f resolverFunc) Resolve(mode providers.Mode, name providers.Name) (providers.Adapter, error) {
	return f(mode, name)
}

// everyone resolves any pair to the same adapter.
func everyone(a providers.Adapter) providers.Resolver {
	return resolverFunc(func(providers.Mode, providers.Name) (providers.Adapter, error) {
		return a, nil
	})
}

func textAttempt(provider providers.Name, model string) Attempt {
	return Attempt{
		Provider: provider,
		Model:    model,
		Mode:     providers.ModeText,
		Input:    providers.TextPrompt("Name ten animals"),
	}
}

func TestDispatch_FallbackScenario(t *testing.T) {
	openaiAdapter := new(MockAdapter)
	anthropicAdapter := new(MockAdapter)

	openaiAdapter.On("Invoke", mock.Anything, mock.MatchedBy(func(req *providers.Request) bool {
		return req.Model == "bad-model"
	})).Return(nil, errors.New("model not found")).Once()
	anthropicAdapter.On("Invoke", mock.Anything, mock.MatchedBy(func(req *providers.Request) bool {
		return req.Model == "claude-x" && req.Prompt.PlainText() == "Name ten animals"
	})).Return(providers.ContentBlocks{{Type: "text", Text: "ten animals: ..."}}, nil).Once()

	reg := &providers.Registry{OpenAIText: openaiAdapter, AnthropicText: anthropicAdapter}

	var hooked []AttemptFailure
	d := New(reg, WithFailureHook(func(f AttemptFailure) { hooked = append(hooked, f) }))

	out, err := d.Dispatch(context.Background(),
		textAttempt(providers.OpenAI, "bad-model"),
		[]Attempt{textAttempt(providers.Anthropic, "claude-x")})

	require.NoError(t, err)
	assert.Equal(t, "ten animals: ...", out.Result.Text)
	assert.Equal(t, KindText, out.Result.Kind)
	assert.Equal(t, providers.Anthropic, out.Provider)
	assert.Equal(t, "claude-x", out.Model)
	assert.Equal(t, 0, out.Index)
	assert.True(t, out.UsedFallback())

	require.Len(t, out.Failures, 1)
	assert.Equal(t, providers.OpenAI, out.Failures[0].Provider)
	assert.Equal(t, "bad-model", out.Failures[0].Model)
	assert.Equal(t, "model not found", out.Failures[0].Message)
	assert.Equal(t, PrimaryIndex, out.Failures[0].Index)
	assert.Equal(t, out.Failures, hooked)

	openaiAdapter.AssertExpectations(t)
	anthropicAdapter.AssertExpectations(t)
}

func TestDispatch_EmptyFallbacksPrimaryFails(t *testing.T) {
	primaryErr := errors.New("openai: invalid api key")
	spy := newSpy()
	spy.fail["gpt-4o"] = primaryErr

	_, err := New(everyone(spy)).Dispatch(context.Background(), textAttempt(providers.OpenAI, "gpt-4o"), nil)

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Failures, 1)
	assert.Equal(t, primaryErr.Error(), exhausted.Failures[0].Message)
	assert.Equal(t, PrimaryIndex, exhausted.Failures[0].Index)
	assert.ErrorIs(t, err, primaryErr)
	assert.True(t, services.IsExhaustedError(err))
	assert.False(t, services.IsConfigurationError(err))
	assert.Equal(t, 1, exhausted.Attempts())
	assert.Equal(t, []string{"gpt-4o"}, spy.calls)
}

func TestDispatch_PrimarySuccessSkipsFallbacks(t *testing.T) {
	spy := newSpy()

	out, err := New(everyone(spy)).Dispatch(context.Background(),
		textAttempt(providers.OpenAI, "primary"),
		[]Attempt{textAttempt(providers.Anthropic, "fb-0"), textAttempt(providers.Ollama, "fb-1")})

	require.NoError(t, err)
	assert.Equal(t, "answer from primary", out.Result.Text)
	assert.Equal(t, PrimaryIndex, out.Index)
	assert.False(t, out.UsedFallback())
	assert.Empty(t, out.Failures)
	assert.Equal(t, []string{"primary"}, spy.calls)
}

func TestDispatch_ExhaustedListsEveryAttempt(t *testing.T) {
	spy := newSpy()
	spy.fail["primary"] = errors.New("quota exceeded")
	spy.fail["fb-0"] = errors.New("overloaded")
	spy.fail["fb-1"] = errors.New("connection refused")

	_, err := New(everyone(spy)).Dispatch(context.Background(),
		textAttempt(providers.OpenAI, "primary"),
		[]Attempt{textAttempt(providers.Anthropic, "fb-0"), textAttempt(providers.Ollama, "fb-1")})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, providers.ModeText, exhausted.Mode)
	require.Len(t, exhausted.Failures, 3)

	want := []struct {
		provider providers.Name
		model    string
		message  string
		index    int
	}{
		{providers.OpenAI, "primary", "quota exceeded", PrimaryIndex},
		{providers.Anthropic, "fb-0", "overloaded", 0},
		{providers.Ollama, "fb-1", "connection refused", 1},
	}
	for i, w := range want {
		f := exhausted.Failures[i]
		assert.Equal(t, w.provider, f.Provider)
		assert.Equal(t, w.model, f.Model)
		assert.Equal(t, w.message, f.Message)
		assert.Equal(t, w.index, f.Index)
	}

	assert.Equal(t,
		"all 3 text attempts failed; [primary] openai/primary: quota exceeded; "+
			"[fallback 0] anthropic/fb-0: overloaded; [fallback 1] ollama/fb-1: connection refused",
		err.Error())
	assert.Equal(t, []string{"primary", "fb-0", "fb-1"}, spy.calls)
}

func TestDispatch_ConfigurationErrorsBeforeAnyCall(t *testing.T) {
	reg := &providers.Registry{}
	spy := newSpy()
	reg.OpenAIText = spy
	reg.OpenAIImage = spy

	tests := []struct {
		name      string
		primary   Attempt
		fallbacks []Attempt
		contains  string
	}{
		{
			name:    "mode mismatch",
			primary: textAttempt(providers.OpenAI, "gpt-4o"),
			fallbacks: []Attempt{{
				Provider: providers.OpenAI, Model: "dall-e-3", Mode: providers.ModeImage,
				Input: providers.TextPrompt("a cat"),
			}},
			contains: "fallback 0 uses image mode but the primary uses text mode",
		},
		{
			name:      "unsupported provider for mode",
			primary:   textAttempt(providers.OpenAI, "gpt-4o"),
			fallbacks: []Attempt{textAttempt(providers.Stability, "sdxl")},
			contains:  "fallback 0: cannot use provider \"stability\"",
		},
		{
			name:     "unknown provider",
			primary:  textAttempt("cohere", "command"),
			contains: "primary: cannot use provider \"cohere\"",
		},
		{
			name:     "provider without credentials",
			primary:  textAttempt(providers.Anthropic, "claude-x"),
			contains: "no credentials",
		},
		{
			name:     "empty prompt",
			primary:  Attempt{Provider: providers.OpenAI, Model: "gpt-4o", Mode: providers.ModeText, Input: providers.TextPrompt("")},
			contains: "primary: invalid prompt",
		},
		{
			name: "conversation for image mode",
			primary: Attempt{
				Provider: providers.OpenAI, Model: "dall-e-3", Mode: providers.ModeImage,
				Input: providers.MessagePrompt(providers.Message{Role: providers.RoleUser, Content: "a cat"}),
			},
			contains: "requires a plain text prompt",
		},
		{
			name:     "missing model",
			primary:  textAttempt(providers.OpenAI, " "),
			contains: "model is required",
		},
		{
			name:     "unknown mode",
			primary:  Attempt{Provider: providers.OpenAI, Model: "x", Mode: "video", Input: providers.TextPrompt("x")},
			contains: "unknown mode",
		},
		{
			name:    "invalid role in a late fallback",
			primary: textAttempt(providers.OpenAI, "gpt-4o"),
			fallbacks: []Attempt{
				textAttempt(providers.OpenAI, "gpt-4o-mini"),
				{
					Provider: providers.OpenAI, Model: "gpt-4.1", Mode: providers.ModeText,
					Input: providers.MessagePrompt(providers.Message{Role: "tool", Content: "x"}),
				},
			},
			contains: "fallback 1: invalid prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy.calls = nil
			out, err := New(reg).Dispatch(context.Background(), tt.primary, tt.fallbacks)

			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, services.IsConfigurationError(err), "got %v", err)
			assert.False(t, services.IsExhaustedError(err))
			assert.Contains(t, err.Error(), tt.contains)
			assert.Empty(t, spy.calls, "no adapter may be invoked")
		})
	}
}

func TestDispatch_ContractViolationFailsClosed(t *testing.T) {
	spy := newSpy()
	spy.raw["blocks-tool"] = providers.ContentBlocks{{Type: "tool_use"}}
	spy.raw["bytes"] = providers.Binary{1, 2, 3}

	out, err := New(everyone(spy)).Dispatch(context.Background(),
		textAttempt(providers.Anthropic, "blocks-tool"),
		[]Attempt{textAttempt(providers.OpenAI, "bytes"), textAttempt(providers.Ollama, "good")})

	require.NoError(t, err)
	assert.Equal(t, "answer from good", out.Result.Text)
	assert.Equal(t, 1, out.Index)
	require.Len(t, out.Failures, 2)
	assert.True(t, services.IsContractError(out.Failures[0].Err))
	assert.True(t, services.IsContractError(out.Failures[1].Err))
}

func TestDispatch_PanickingAdapterIsAFailure(t *testing.T) {
	calls := 0
	panicky := providers.AdapterFunc(func(_ context.Context, req *providers.Request) (providers.Raw, error) {
		calls++
		if req.Model == "explode" {
			panic("nil map write")
		}
		return providers.Text("recovered"), nil
	})

	out, err := New(everyone(panicky)).Dispatch(context.Background(),
		textAttempt(providers.OpenAI, "explode"),
		[]Attempt{textAttempt(providers.Anthropic, "fine")})

	require.NoError(t, err)
	assert.Equal(t, "recovered", out.Result.Text)
	assert.Equal(t, 2, calls)
	require.Len(t, out.Failures, 1)
	assert.Contains(t, out.Failures[0].Message, "adapter panicked")
	assert.Contains(t, out.Failures[0].Message, "nil map write")
}

func TestDispatch_CanceledContextSkipsRemainingAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cancelling := providers.AdapterFunc(func(context.Context, *providers.Request) (providers.Raw, error) {
		calls++
		cancel()
		return nil, errors.New("client went away")
	})

	_, err := New(everyone(cancelling)).Dispatch(ctx,
		textAttempt(providers.OpenAI, "a"),
		[]Attempt{textAttempt(providers.Anthropic, "b"), textAttempt(providers.Ollama, "c")})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, calls)
	require.Len(t, exhausted.Failures, 3)
	assert.Equal(t, "client went away", exhausted.Failures[0].Message)
	assert.ErrorIs(t, exhausted.Failures[1].Err, context.Canceled)
	assert.ErrorIs(t, exhausted.Failures[2].Err, context.Canceled)
	assert.Equal(t, 1, exhausted.Failures[2].Index)
}

func TestDispatch_PassesAttemptToAdapter(t *testing.T) {
	maxTokens := 64
	adapter := new(MockAdapter)
	opts := providers.Options{Text: &providers.TextOptions{MaxTokens: &maxTokens}}
	prompt := providers.MessagePrompt(
		providers.Message{Role: providers.RoleSystem, Content: "be brief"},
		providers.Message{Role: providers.RoleUser, Content: "hi"},
	)

	adapter.On("Invoke", mock.Anything, &providers.Request{
		Provider: providers.DeepSeek,
		Model:    "deepseek-chat",
		Mode:     providers.ModeText,
		Prompt:   prompt,
		Options:  opts,
	}).Return(providers.Text("hey"), nil).Once()

	out, err := New(&providers.Registry{DeepSeekText: adapter}).Dispatch(context.Background(), Attempt{
		Provider: providers.DeepSeek,
		Model:    "deepseek-chat",
		Mode:     providers.ModeText,
		Input:    prompt,
		Options:  opts,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "hey", out.Result.Text)
	adapter.AssertExpectations(t)
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	spy := newSpy()
	spy.fail["bad"] = errors.New("boom")
	rec := new(MockRecorder)
	rec.On("RecordAttempt", providers.ModeText, providers.OpenAI, "bad", false, mock.Anything).Once()
	rec.On("RecordAttempt", providers.ModeText, providers.Anthropic, "good", true, mock.Anything).Once()
	rec.On("RecordDispatch", providers.ModeText, 0, false).Once()

	_, err := New(everyone(spy), WithRecorder(rec)).Dispatch(context.Background(),
		textAttempt(providers.OpenAI, "bad"),
		[]Attempt{textAttempt(providers.Anthropic, "good")})

	require.NoError(t, err)
	rec.AssertExpectations(t)
}

func TestDispatch_RecordsExhaustion(t *testing.T) {
	spy := newSpy()
	spy.fail["bad"] = errors.New("boom")
	rec := new(MockRecorder)
	rec.On("RecordAttempt", mock.Anything, mock.Anything, mock.Anything, false, mock.Anything).Twice()
	rec.On("RecordDispatch", providers.ModeText, 0, true).Once()

	_, err := New(everyone(spy), WithRecorder(rec)).Dispatch(context.Background(),
		textAttempt(providers.OpenAI, "bad"),
		[]Attempt{textAttempt(providers.Anthropic, "bad")})

	require.Error(t, err)
	rec.AssertExpectations(t)
}

func TestDispatch_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	spy := newSpy()
	spy.fail["bad"] = errors.New("model not found")

	_, err := New(everyone(spy), WithLogger(zap.New(core))).Dispatch(context.Background(),
		textAttempt(providers.OpenAI, "bad"),
		[]Attempt{textAttempt(providers.Anthropic, "good")})
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("primary provider failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("trying fallback provider").Len())
	assert.Equal(t, 1, logs.FilterMessage("fallback provider succeeded").Len())
	assert.Equal(t, 0, logs.FilterMessage("all providers failed").Len())

	entry := logs.FilterMessage("primary provider failed").All()[0]
	assert.Equal(t, "bad", entry.ContextMap()["model"])
	assert.Equal(t, "openai", entry.ContextMap()["provider"])
}

func TestDispatch_LoggingExhausted(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	spy := newSpy()
	spy.fail["busy"] = providers.NewProviderError("openai", "server_error", "overloaded", 503, true, nil)
	spy.fail["bad"] = errors.New("model not found")

	_, err := New(everyone(spy), WithLogger(zap.New(core))).Dispatch(context.Background(),
		textAttempt(providers.OpenAI, "busy"),
		[]Attempt{textAttempt(providers.Anthropic, "bad")})
	require.Error(t, err)

	primary := logs.FilterMessage("primary provider failed").All()
	require.Len(t, primary, 1)
	assert.Equal(t, true, primary[0].ContextMap()["retryable"])

	fallback := logs.FilterMessage("fallback provider failed").All()
	require.Len(t, fallback, 1)
	assert.Equal(t, false, fallback[0].ContextMap()["retryable"])

	summary := logs.FilterMessage("all providers failed").All()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(2), summary[0].ContextMap()["attempts"])
}

func TestDispatcher_ConvenienceEntryPoints(t *testing.T) {
	var seen []*providers.Request
	adapter := providers.AdapterFunc(func(_ context.Context, req *providers.Request) (providers.Raw, error) {
		seen = append(seen, req)
		switch req.Mode {
		case providers.ModeImage:
			if req.Provider == providers.OpenAI {
				return nil, errors.New("content policy")
			}
			return providers.Binary{0x89, 0x50}, nil
		case providers.ModeAudio:
			return providers.Binary{0xff, 0xfb}, nil
		}
		return providers.Text("ok"), nil
	})
	d := New(everyone(adapter))
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		seen = nil
		out, err := d.Text(ctx, providers.TextPrompt("hi"), Target{Provider: providers.Ollama, Model: "llama3"})
		require.NoError(t, err)
		assert.Equal(t, "ok", out.Result.Text)
		require.Len(t, seen, 1)
		assert.Equal(t, providers.ModeText, seen[0].Mode)
	})

	t.Run("image falls back", func(t *testing.T) {
		seen = nil
		out, err := d.Image(ctx, "a lighthouse",
			Target{Provider: providers.OpenAI, Model: "dall-e-3"},
			Target{Provider: providers.Stability, Model: "sdxl"})
		require.NoError(t, err)
		assert.Equal(t, KindBytes, out.Result.Kind)
		assert.Equal(t, providers.Stability, out.Provider)
		require.Len(t, seen, 2)
		for _, req := range seen {
			assert.Equal(t, providers.ModeImage, req.Mode)
			assert.Equal(t, "a lighthouse", req.Prompt.PlainText())
		}
	})

	t.Run("audio", func(t *testing.T) {
		seen = nil
		out, err := d.Audio(ctx, "hello there", Target{Provider: providers.ElevenLabs, Model: "eleven_multilingual_v2"})
		require.NoError(t, err)
		assert.Equal(t, []byte{0xff, 0xfb}, out.Result.Data)
		assert.Equal(t, providers.ModeAudio, out.Result.Mode)
	})
}

func TestDispatch_ConcurrentCallsShareNothing(t *testing.T) {
	var calls atomic.Int64
	adapter := providers.AdapterFunc(func(_ context.Context, req *providers.Request) (providers.Raw, error) {
		calls.Add(1)
		if req.Model == "bad" {
			return nil, errors.New("boom")
		}
		return providers.Text(req.Prompt.PlainText()), nil
	})
	d := New(everyone(adapter))

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		prompt := fmt.Sprintf("prompt-%d", i)
		g.Go(func() error {
			out, err := d.Text(context.Background(), providers.TextPrompt(prompt),
				Target{Provider: providers.OpenAI, Model: "bad"},
				Target{Provider: providers.Anthropic, Model: "good"})
			if err != nil {
				return err
			}
			if out.Result.Text != prompt {
				return fmt.Errorf("got %q, want %q", out.Result.Text, prompt)
			}
			if len(out.Failures) != 1 {
				return fmt.Errorf("got %d failures, want 1", len(out.Failures))
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, int64(64), calls.Load())
}
