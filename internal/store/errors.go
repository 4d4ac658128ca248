package store

import (
	"fmt"
	"net/http"

	"github.com/gravitrone/kgeditor/internal/api"
)

// ErrorKind classifies why an instance could not be fetched.
type ErrorKind int

const (
	// ErrorNotFound: the instance was removed or is not accessible. Terminal.
	ErrorNotFound ErrorKind = iota + 1
	// ErrorTransport: server or network failure. Retryable.
	ErrorTransport
	// ErrorUnexpected: malformed, empty or missing response. Terminal.
	ErrorUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNotFound:
		return "not_found"
	case ErrorTransport:
		return "transport"
	case ErrorUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

const (
	msgNoResponse = "Unexpected error: no response returned."
	msgNotFound   = "Instance not found - it either could have been removed or it's not a recognized resource"
)

// FetchError is recorded on an instance whose fetch failed.
type FetchError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a user-initiated retry may succeed.
func (e *FetchError) Retryable() bool {
	return e != nil && e.Kind == ErrorTransport
}

// itemError classifies a per-id error carried inside a bulk response.
func itemError(ie *api.ItemError) *FetchError {
	kind := classifyStatus(ie.Code)
	msg := msgNotFound + "."
	if ie.Code != 0 {
		msg = fmt.Sprintf("%s [error %d].", msgNotFound, ie.Code)
	}
	if kind != ErrorNotFound && ie.Message != "" {
		msg = ie.Message
	}
	return &FetchError{Kind: kind, Code: ie.Code, Message: msg}
}

// missingError is recorded when the response carries no entry for an id.
func missingError() *FetchError {
	return &FetchError{Kind: ErrorUnexpected, Message: msgNoResponse}
}

// requestError classifies a failure of the whole round trip.
func requestError(err error) *FetchError {
	switch {
	case api.IsDecode(err):
		return &FetchError{Kind: ErrorUnexpected, Message: msgNoResponse, Err: err}
	case api.StatusCode(err) != 0:
		code := api.StatusCode(err)
		return &FetchError{Kind: classifyStatus(code), Code: code, Message: err.Error(), Err: err}
	default:
		return &FetchError{Kind: ErrorTransport, Message: err.Error(), Err: err}
	}
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusNotFound, code == http.StatusForbidden, code == http.StatusGone:
		return ErrorNotFound
	case code == http.StatusTooManyRequests, code >= 500:
		return ErrorTransport
	case code == 0:
		return ErrorNotFound
	default:
		return ErrorUnexpected
	}
}
