package dispatch

import (
	"fmt"
	"strings"

	"github.com/upb/apicenter/services"
	"github.com/upb/apicenter/services/providers"
)

// ExhaustedError is returned when the primary and every fallback failed.
// Failures are in the order the attempts were tried.
type ExhaustedError struct {
	Mode     providers.Mode
	Failures []AttemptFailure
}

// Error lists every attempt with its provider, model and reason.
func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d %s attempts failed", len(e.Failures), e.Mode)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; [%s] %s/%s: %s", f.Label(), f.Provider, f.Model, f.Message)
	}
	return b.String()
}

// Unwrap exposes the exhausted sentinel and each attempt's own error, so
// errors.Is can match the primary's failure even when no fallback exists.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, services.ErrDispatchExhausted)
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// Attempts returns the number of attempts that were tried.
func (e *ExhaustedError) Attempts() int {
	return len(e.Failures)
}

func configurationError(format string, args ...any) error {
	return services.NewDomainError(services.ErrorTypeConfiguration, fmt.Sprintf(format, args...), nil)
}

func label(index int) string {
	if index == PrimaryIndex {
		return "primary"
	}
	return fmt.Sprintf("fallback %d", index)
}
