package dispatch

import (
	"github.com/upb/apicenter/services/providers"
)

// PrimaryIndex is the failure index recorded for the primary attempt.
// Fallback failures carry their position in the fallback list.
const PrimaryIndex = -1

// Attempt is one (provider, model) call in a dispatch.
type Attempt struct {
	Provider providers.Name
	Model    string
	Mode     providers.Mode
	Input    providers.Prompt
	Options  providers.Options
}

// Target names a provider and model without the shared prompt and mode.
type Target struct {
	Provider providers.Name
	Model    string
	Options  providers.Options
}

// Kind tells which field of a Result holds the payload.
type Kind string

const (
	KindText  Kind = "text"
	KindURL   Kind = "url"
	KindURLs  Kind = "urls"
	KindBytes Kind = "bytes"
)

// Result is a normalized success value. Text mode always yields KindText,
// audio mode always yields KindBytes, image mode yields one of KindURL,
// KindURLs or KindBytes.
type Result struct {
	Mode providers.Mode
	Kind Kind
	Text string
	URL  string
	URLs []string
	Data []byte
}

// AttemptFailure records why one attempt did not produce a result.
type AttemptFailure struct {
	Provider providers.Name
	Model    string
	Message  string
	Index    int
	Err      error
}

// Label names the attempt's position for logs and messages.
func (f AttemptFailure) Label() string {
	return label(f.Index)
}

// Outcome is the result of a successful dispatch.
type Outcome struct {
	Result   Result
	Provider providers.Name
	Model    string

	// Index is PrimaryIndex when the primary answered, otherwise the
	// position of the fallback that did.
	Index int

	// Failures holds the attempts that failed before the one that answered,
	// in the order they were tried.
	Failures []AttemptFailure
}

// UsedFallback reports whether a fallback produced the result.
func (o *Outcome) UsedFallback() bool {
	return o.Index != PrimaryIndex
}

// step is the tagged value produced by one attempt: exactly one of result
// or failure is meaningful, selected by ok.
type step struct {
	ok      bool
	result  Result
	failure AttemptFailure
}

func succeeded(r Result) step {
	return step{ok: true, result: r}
}

func failed(a Attempt, index int, err error) step {
	return step{failure: AttemptFailure{
		Provider: a.Provider,
		Model:    a.Model,
		Message:  err.Error(),
		Index:    index,
		Err:      err,
	}}
}
