package fetch

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. A *Failure matches exactly one of them via errors.Is.
var (
	ErrNetwork = errors.New("fetch: request failed")
	ErrStatus  = errors.New("fetch: unexpected status")
	ErrDecode  = errors.New("fetch: invalid JSON body")
)

// Kind classifies a Failure.
type Kind int

const (
	// KindRequest covers invalid requests and transport errors.
	KindRequest Kind = iota + 1
	// KindStatus is a response outside the 2xx range.
	KindStatus
	// KindDecode is a 2xx response whose body does not decode into the target.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindStatus:
		return ErrStatus
	case KindDecode:
		return ErrDecode
	default:
		return ErrNetwork
	}
}

// Failure describes why a request produced no value.
type Failure struct {
	Kind       Kind
	Method     string
	URL        string
	StatusCode int    // zero unless a response was received
	Body       string // leading bytes of the response body, if any
	Err        error
}

func (f *Failure) Error() string {
	switch {
	case f.Kind == KindStatus:
		return fmt.Sprintf("%s %s: status %d", f.Method, f.URL, f.StatusCode)
	case f.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", f.Method, f.URL, f.Kind, f.Err)
	default:
		return fmt.Sprintf("%s %s: %s", f.Method, f.URL, f.Kind)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind.sentinel()}
	}
	return []error{f.Kind.sentinel(), f.Err}
}
