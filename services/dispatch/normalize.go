package dispatch

import (
	"fmt"
	"strings"

	"github.com/upb/apicenter/services"
	"github.com/upb/apicenter/services/providers"
)

// Normalize converts a raw adapter result into the single shape the mode
// promises. Any shape the mode does not accept is a contract violation, which
// the dispatcher treats as a failed attempt.
func Normalize(mode providers.Mode, raw providers.Raw) (Result, error) {
	switch mode {
	case providers.ModeText:
		switch v := raw.(type) {
		case providers.Text:
			return Result{Mode: mode, Kind: KindText, Text: string(v)}, nil
		case providers.ContentBlocks:
			if len(v) == 0 {
				return Result{}, violation(mode, "empty content block list")
			}
			if v[0].Type != "text" {
				return Result{}, violation(mode, fmt.Sprintf("first content block has type %q", v[0].Type))
			}
			return Result{Mode: mode, Kind: KindText, Text: v[0].Text}, nil
		}

	case providers.ModeImage:
		switch v := raw.(type) {
		case providers.ImageURL:
			if strings.TrimSpace(string(v)) == "" {
				return Result{}, violation(mode, "empty image URL")
			}
			return Result{Mode: mode, Kind: KindURL, URL: string(v)}, nil
		case providers.ImageURLs:
			if len(v) == 0 {
				return Result{}, violation(mode, "empty image URL list")
			}
			for _, u := range v {
				if strings.TrimSpace(u) == "" {
					return Result{}, violation(mode, "empty URL in image URL list")
				}
			}
			urls := make([]string, len(v))
			copy(urls, v)
			return Result{Mode: mode, Kind: KindURLs, URLs: urls}, nil
		case providers.Binary:
			if len(v) == 0 {
				return Result{}, violation(mode, "empty image payload")
			}
			return Result{Mode: mode, Kind: KindBytes, Data: []byte(v)}, nil
		}

	case providers.ModeAudio:
		if v, ok := raw.(providers.Binary); ok {
			if len(v) == 0 {
				return Result{}, violation(mode, "empty audio payload")
			}
			return Result{Mode: mode, Kind: KindBytes, Data: []byte(v)}, nil
		}
	}

	return Result{}, violation(mode, fmt.Sprintf("unexpected result type %T", raw))
}

func violation(mode providers.Mode, detail string) error {
	return services.NewDomainError(services.ErrorTypeContract,
		fmt.Sprintf("%s result rejected: %s", mode, detail), nil)
}
