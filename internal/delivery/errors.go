package delivery

import (
	"errors"
	"fmt"
)

// Kind classifies a failed delivery attempt.
type Kind int

const (
	Transient Kind = iota + 1
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseKind accepts "transient"/"retry" and "fatal"/"permanent".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "transient", "retry", "temporary":
		return Transient, nil
	case "fatal", "permanent":
		return Fatal, nil
	}
	return 0, fmt.Errorf("unknown failure kind %q", s)
}

var (
	ErrTransient = errors.New("transient delivery failure")
	ErrFatal     = errors.New("fatal delivery failure")
)

// Error is a classified delivery failure.
type Error struct {
	Kind     Kind
	Provider string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	p := e.Provider
	if p == "" {
		p = "delivery"
	}
	kind := "temporary"
	if e.Kind == Fatal {
		kind = "fatal"
	}
	if e.Detail == "" && e.Err != nil {
		return fmt.Sprintf("%s %s error: %v", p, kind, e.Err)
	}
	return fmt.Sprintf("%s %s error: %s", p, kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match on ErrTransient / ErrFatal.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == Transient
	case ErrFatal:
		return e.Kind == Fatal
	}
	return false
}

func NewTransient(provider, detail string, cause error) *Error {
	return &Error{Kind: Transient, Provider: provider, Detail: detail, Err: cause}
}

func NewFatal(provider, detail string, cause error) *Error {
	return &Error{Kind: Fatal, Provider: provider, Detail: detail, Err: cause}
}

// As extracts the classified error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
func IsFatal(err error) bool     { return errors.Is(err, ErrFatal) }
