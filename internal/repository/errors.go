package repository

import (
	"errors"
	"fmt"
)

var (
	ErrLocationNotFound   = errors.New("location not found")
	ErrMissingMain        = errors.New("response has no main section")
	ErrMissingTemp        = errors.New("response has no temperature")
	ErrMissingDescription = errors.New("response has no weather description")
	ErrEmptyResult        = errors.New("response has no weather descriptions")
)

// ErrorKind classifies why an upstream lookup failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRequest
	KindTransport
	KindStatus
	KindDecode
	KindEmptyResult
)

func (k ErrorKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindEmptyResult:
		return "empty result"
	default:
		return "unknown"
	}
}

// FetchError is returned by the repository for every failed upstream lookup.
type FetchError struct {
	Kind       ErrorKind
	City       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("fetch weather for %q: %s %d: %v", e.City, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch weather for %q: %s: %v", e.City, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf returns the kind of the FetchError in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
