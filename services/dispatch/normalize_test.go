package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/apicenter/services"
	"github.com/upb/apicenter/services/providers"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		mode providers.Mode
		raw  providers.Raw
		want Result
	}{
		{
			name: "plain text passes through",
			mode: providers.ModeText,
			raw:  providers.Text("hello"),
			want: Result{Mode: providers.ModeText, Kind: KindText, Text: "hello"},
		},
		{
			name: "empty text passes through",
			mode: providers.ModeText,
			raw:  providers.Text(""),
			want: Result{Mode: providers.ModeText, Kind: KindText},
		},
		{
			name: "content blocks yield the first block",
			mode: providers.ModeText,
			raw: providers.ContentBlocks{
				{Type: "text", Text: "hello"},
				{Type: "text", Text: "ignored"},
			},
			want: Result{Mode: providers.ModeText, Kind: KindText, Text: "hello"},
		},
		{
			name: "single image url",
			mode: providers.ModeImage,
			raw:  providers.ImageURL("https://img.test/a.png"),
			want: Result{Mode: providers.ModeImage, Kind: KindURL, URL: "https://img.test/a.png"},
		},
		{
			name: "image url list is preserved",
			mode: providers.ModeImage,
			raw:  providers.ImageURLs{"https://img.test/a.png", "https://img.test/b.png"},
			want: Result{Mode: providers.ModeImage, Kind: KindURLs, URLs: []string{"https://img.test/a.png", "https://img.test/b.png"}},
		},
		{
			name: "image bytes",
			mode: providers.ModeImage,
			raw:  providers.Binary{0x89, 0x50, 0x4e, 0x47},
			want: Result{Mode: providers.ModeImage, Kind: KindBytes, Data: []byte{0x89, 0x50, 0x4e, 0x47}},
		},
		{
			name: "audio bytes",
			mode: providers.ModeAudio,
			raw:  providers.Binary{0xff, 0xfb},
			want: Result{Mode: providers.ModeAudio, Kind: KindBytes, Data: []byte{0xff, 0xfb}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.mode, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_ContractViolations(t *testing.T) {
	tests := []struct {
		name string
		mode providers.Mode
		raw  providers.Raw
	}{
		{"nil raw", providers.ModeText, nil},
		{"bytes for text", providers.ModeText, providers.Binary{1}},
		{"url for text", providers.ModeText, providers.ImageURL("https://img.test/a.png")},
		{"empty block list", providers.ModeText, providers.ContentBlocks{}},
		{"first block is not text", providers.ModeText, providers.ContentBlocks{{Type: "tool_use"}, {Type: "text", Text: "x"}}},
		{"text for image", providers.ModeImage, providers.Text("a cat")},
		{"empty url", providers.ModeImage, providers.ImageURL("")},
		{"empty url list", providers.ModeImage, providers.ImageURLs{}},
		{"url list with one blank entry", providers.ModeImage, providers.ImageURLs{""}},
		{"url list with a trailing blank entry", providers.ModeImage, providers.ImageURLs{"https://img.test/a.png", "  "}},
		{"blank url", providers.ModeImage, providers.ImageURL(" ")},
		{"empty image bytes", providers.ModeImage, providers.Binary{}},
		{"url for audio", providers.ModeAudio, providers.ImageURL("https://a.test/x.mp3")},
		{"text for audio", providers.ModeAudio, providers.Text("hi")},
		{"empty audio bytes", providers.ModeAudio, providers.Binary(nil)},
		{"unknown mode", providers.Mode("video"), providers.Binary{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.mode, tt.raw)
			require.Error(t, err)
			assert.True(t, services.IsContractError(err))
		})
	}
}

func TestNormalize_URLListIsCopied(t *testing.T) {
	raw := providers.ImageURLs{"https://img.test/a.png"}
	got, err := Normalize(providers.ModeImage, raw)
	require.NoError(t, err)

	raw[0] = "changed"
	assert.Equal(t, []string{"https://img.test/a.png"}, got.URLs)
}
