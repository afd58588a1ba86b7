package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/apicenter/services/providers"
)

func TestChatRequest(t *testing.T) {
	temperature := 0.2
	maxTokens := 128
	req := &providers.Request{
		Model: "llama3.2",
		Mode:  providers.ModeText,
		Prompt: providers.MessagePrompt(
			providers.Message{Role: providers.RoleSystem, Content: "Be brief."},
			providers.Message{Role: providers.RoleUser, Content: "Hi"},
			providers.Message{Role: providers.RoleAssistant, Content: "Hello"},
			providers.Message{Role: providers.RoleUser, Content: "Again"},
		),
		Options: providers.Options{Text: &providers.TextOptions{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
			Stop:        []string{"###"},
			Format:      "json",
			KeepAlive:   "5m",
		}},
	}

	chatReq, err := ChatRequest(req)
	require.NoError(t, err)

	assert.Equal(t, "llama3.2", chatReq.Model)
	require.NotNil(t, chatReq.Stream)
	assert.False(t, *chatReq.Stream)
	require.Len(t, chatReq.Messages, 3)
	assert.Equal(t, "user", chatReq.Messages[0].Role)
	assert.Equal(t, "[System: Be brief.]\n\nHi", chatReq.Messages[0].Content)
	assert.Equal(t, "assistant", chatReq.Messages[1].Role)
	assert.Equal(t, "Again", chatReq.Messages[2].Content)

	assert.Equal(t, 0.2, chatReq.Options["temperature"])
	assert.Equal(t, 128, chatReq.Options["num_predict"])
	assert.Equal(t, []string{"###"}, chatReq.Options["stop"])
	assert.JSONEq(t, `"json"`, string(chatReq.Format))
	require.NotNil(t, chatReq.KeepAlive)
	assert.Equal(t, 5*time.Minute, chatReq.KeepAlive.Duration)
}

func TestChatRequest_NoSystemNoOptions(t *testing.T) {
	chatReq, err := ChatRequest(&providers.Request{
		Model:  "llama3.2",
		Mode:   providers.ModeText,
		Prompt: providers.TextPrompt("Hi"),
	})
	require.NoError(t, err)

	require.Len(t, chatReq.Messages, 1)
	assert.Equal(t, "Hi", chatReq.Messages[0].Content)
	assert.Nil(t, chatReq.Options)
	assert.Nil(t, chatReq.KeepAlive)
	assert.Empty(t, chatReq.Format)
}

func TestChatRequest_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts providers.TextOptions
	}{
		{"bad keep alive", providers.TextOptions{KeepAlive: "forever"}},
		{"bad format", providers.TextOptions{Format: "yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			_, err := ChatRequest(&providers.Request{
				Model:   "llama3.2",
				Prompt:  providers.TextPrompt("Hi"),
				Options: providers.Options{Text: &opts},
			})
			assert.Error(t, err)
		})
	}
}

func TestAdapter_Invoke(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &seen)

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"model":"llama3.2","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"ten animals: ..."},"done":true}`+"\n")
	}))
	defer srv.Close()

	a, err := New(providers.ProviderConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	raw, err := a.Invoke(context.Background(), &providers.Request{
		Provider: providers.Ollama,
		Model:    "llama3.2",
		Mode:     providers.ModeText,
		Prompt:   providers.TextPrompt("Name ten animals"),
	})

	require.NoError(t, err)
	assert.Equal(t, providers.Text("ten animals: ..."), raw)
	assert.Equal(t, "llama3.2", seen["model"])
	assert.Equal(t, false, seen["stream"])
}

func TestAdapter_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"mystery\" not found"}`+"\n")
	}))
	defer srv.Close()

	a, err := New(providers.ProviderConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), &providers.Request{
		Model:  "mystery",
		Mode:   providers.ModeText,
		Prompt: providers.TextPrompt("hi"),
	})

	require.Error(t, err)
	var provErr *providers.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusNotFound, provErr.StatusCode)
	assert.Contains(t, provErr.Message, "ollama pull mystery")
	assert.False(t, provErr.Retryable)
}

func TestAdapter_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	a, err := New(providers.ProviderConfig{BaseURL: base, Timeout: time.Second})
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), &providers.Request{
		Model:  "llama3.2",
		Mode:   providers.ModeText,
		Prompt: providers.TextPrompt("hi"),
	})

	require.Error(t, err)
	assert.True(t, providers.IsRetryable(err))
}

func TestNew_InvalidHost(t *testing.T) {
	_, err := New(providers.ProviderConfig{BaseURL: "://bad"})
	assert.Error(t, err)
}
