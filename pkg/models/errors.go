package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed tool operation.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindUpstream           ErrorKind = "upstream_error"
	KindTransport          ErrorKind = "transport_error"
	KindHeuristicExhausted ErrorKind = "heuristic_exhausted"
)

// Sentinels for errors.Is; any *Error of the same kind matches.
var (
	ErrNotFound           = errors.New(string(KindNotFound))
	ErrUpstream           = errors.New(string(KindUpstream))
	ErrTransport          = errors.New(string(KindTransport))
	ErrHeuristicExhausted = errors.New(string(KindHeuristicExhausted))
)

// Stages name the remote call that failed.
const (
	StageProduct     = "product"
	StageVariations  = "variations"
	StageOrder       = "order"
	StagePaymentPage = "payment_page"
	StageSearch      = "search"
)

// Error carries the diagnostics of a failed remote call: which stage failed,
// the HTTP status and raw body when there was a response, and the cause.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Stage      string    `json:"stage,omitempty"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Body       string    `json:"body,omitempty"`
	Err        error     `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "error"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s (stage %s)", msg, e.Stage)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrHeuristicExhausted:
		return e.Kind == KindHeuristicExhausted
	}
	return false
}

func NotFound(stage, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Upstream reports a non-success response. err is set when no response was
// received at all, for example on timeout.
func Upstream(stage string, status int, body string, err error) *Error {
	msg := "unexpected response from shop"
	if err != nil {
		msg = "request to shop failed"
	}
	return &Error{Kind: KindUpstream, Stage: stage, Message: msg, StatusCode: status, Body: body, Err: err}
}

func Transport(stage string, err error) *Error {
	return &Error{Kind: KindTransport, Stage: stage, Message: "could not load page", Err: err}
}

func HeuristicExhausted(stage, format string, args ...any) *Error {
	return &Error{Kind: KindHeuristicExhausted, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
