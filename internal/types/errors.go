package types

import (
	"errors"
	"fmt"
)

// Kind classifies how a visit ended
type Kind string

const (
	KindOK              Kind = "ok"
	KindUnknownProtocol Kind = "unknown_protocol"
	KindInvalidURL      Kind = "invalid_url"
	KindNetwork         Kind = "network"
	KindExchange        Kind = "exchange"
	KindParse           Kind = "parse"
	KindMissingRedirect Kind = "missing_redirect"
	KindBlockedByRobots Kind = "blocked_by_robots"
	KindInternal        Kind = "internal"
)

// Label is the text printed on the Status line for a failed visit.
func (k Kind) Label() string {
	switch k {
	case KindUnknownProtocol:
		return "Unknown Protocol"
	case KindInvalidURL:
		return "Invalid URL"
	case KindNetwork:
		return "Network Error"
	case KindExchange:
		return "No Response"
	case KindParse:
		return "Malformed Response"
	case KindMissingRedirect:
		return "Missing Redirect Location"
	case KindBlockedByRobots:
		return "Blocked By Robots"
	case KindInternal:
		return "Internal Error"
	default:
		return "OK"
	}
}

var (
	ErrUnknownProtocol = errors.New("unknown protocol")
	ErrEmptyResponse   = errors.New("empty response")
	ErrMalformedStatus = errors.New("malformed status line")
	ErrMissingRedirect = errors.New("missing redirect location")
	ErrFollowLimit     = errors.New("follow limit reached")
	ErrFollowLoop      = errors.New("follow loop detected")
	ErrBlockedByRobots = errors.New("blocked by robots.txt")
)

// VisitError wraps a failure with the kind used for reporting
type VisitError struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

// NewVisitError creates a visit error
func NewVisitError(kind Kind, op, url string, err error) *VisitError {
	return &VisitError{Kind: kind, Op: op, URL: url, Err: err}
}

func (e *VisitError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *VisitError) Unwrap() error {
	return e.Err
}

// KindOf extracts the reporting kind of err; unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var ve *VisitError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindInternal
}
