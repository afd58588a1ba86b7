package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/apicenter/services"
)

func stub(out string) Adapter {
	return AdapterFunc(func(context.Context, *Request) (Raw, error) {
		return Text(out), nil
	})
}

func TestRegistry_Resolve(t *testing.T) {
	reg := &Registry{
		OpenAIText:  stub("openai-text"),
		OpenAIImage: stub("openai-image"),
		GoogleAudio: stub("google-audio"),
	}

	tests := []struct {
		name            string
		mode            Mode
		provider        Name
		want            string
		wantUnsupported bool
		wantNotConfig   bool
	}{
		{name: "text openai", mode: ModeText, provider: OpenAI, want: "openai-text"},
		{name: "image openai", mode: ModeImage, provider: OpenAI, want: "openai-image"},
		{name: "audio google", mode: ModeAudio, provider: Google, want: "google-audio"},
		{name: "image anthropic is unsupported", mode: ModeImage, provider: Anthropic, wantUnsupported: true},
		{name: "audio openai is unsupported", mode: ModeAudio, provider: OpenAI, wantUnsupported: true},
		{name: "unknown vendor", mode: ModeText, provider: "cohere", wantUnsupported: true},
		{name: "unknown mode", mode: "video", provider: OpenAI, wantUnsupported: true},
		{name: "text anthropic without key", mode: ModeText, provider: Anthropic, wantNotConfig: true},
		{name: "audio elevenlabs without key", mode: ModeAudio, provider: ElevenLabs, wantNotConfig: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := reg.Resolve(tt.mode, tt.provider)
			switch {
			case tt.wantUnsupported:
				require.Error(t, err)
				assert.True(t, services.IsUnsupportedError(err))
				assert.Nil(t, a)
			case tt.wantNotConfig:
				require.Error(t, err)
				assert.True(t, services.IsNotConfiguredError(err))
				assert.Nil(t, a)
			default:
				require.NoError(t, err)
				raw, err := a.Invoke(context.Background(), &Request{})
				require.NoError(t, err)
				assert.Equal(t, Text(tt.want), raw)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	assert.Equal(t, []Name{OpenAI, Anthropic, Ollama, DeepSeek}, Supported(ModeText))
	assert.Equal(t, []Name{OpenAI, Stability}, Supported(ModeImage))
	assert.Equal(t, []Name{ElevenLabs, Google}, Supported(ModeAudio))
	assert.Empty(t, Supported("video"))
}

func TestRegistry_ConfiguredAndCount(t *testing.T) {
	reg := &Registry{}
	assert.Equal(t, 0, reg.Count())

	require.NoError(t, reg.Set(ModeText, Ollama, stub("x")))
	require.NoError(t, reg.Set(ModeImage, Stability, stub("y")))
	assert.Error(t, reg.Set(ModeAudio, Anthropic, stub("z")))

	assert.Equal(t, []Name{Ollama}, reg.Configured(ModeText))
	assert.Equal(t, []Name{Stability}, reg.Configured(ModeImage))
	assert.Empty(t, reg.Configured(ModeAudio))
	assert.Equal(t, 2, reg.Count())
}

func TestRegistry_Decorate(t *testing.T) {
	reg := &Registry{OpenAIText: stub("inner")}

	var seen []Name
	wrapped := reg.Decorate(func(mode Mode, name Name, a Adapter) Adapter {
		seen = append(seen, name)
		return AdapterFunc(func(ctx context.Context, req *Request) (Raw, error) {
			raw, err := a.Invoke(ctx, req)
			return Text("wrapped " + string(raw.(Text))), err
		})
	})

	assert.Equal(t, []Name{OpenAI}, seen)

	a, err := wrapped.Resolve(ModeText, OpenAI)
	require.NoError(t, err)
	raw, err := a.Invoke(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, Text("wrapped inner"), raw)

	orig, err := reg.Resolve(ModeText, OpenAI)
	require.NoError(t, err)
	raw, err = orig.Invoke(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, Text("inner"), raw, "original registry is untouched")

	_, err = wrapped.Resolve(ModeText, Anthropic)
	assert.True(t, services.IsNotConfiguredError(err))
}
