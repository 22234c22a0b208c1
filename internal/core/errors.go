package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the loader, engine and service.
var (
	// ErrDataUnavailable is returned by every query before the first successful load.
	ErrDataUnavailable = errors.New("data not loaded")

	// ErrInvalidRequest is returned for request parameters the service refuses,
	// such as a source path outside the data directory.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTooManyReloads is returned when every reload slot stays occupied for
	// the configured wait time.
	ErrTooManyReloads = errors.New("too many concurrent reloads, please try again later")

	// ErrNotFound, ErrParseFailure and ErrMalformed match LoadError kinds
	// through errors.Is.
	ErrNotFound     = errors.New("source not found")
	ErrParseFailure = errors.New("source could not be parsed")
	ErrMalformed    = errors.New("source is malformed")
)

// LoadErrorKind classifies why a load failed.
type LoadErrorKind int

const (
	NotFound LoadErrorKind = iota + 1
	ParseFailure
	Malformed
)

// String returns the kind's log and audit label.
func (k LoadErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case ParseFailure:
		return "parse_failure"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

func (k LoadErrorKind) sentinel() error {
	switch k {
	case NotFound:
		return ErrNotFound
	case ParseFailure:
		return ErrParseFailure
	case Malformed:
		return ErrMalformed
	default:
		return nil
	}
}

// LoadError describes a failed load. It never replaces the current Dataset.
type LoadError struct {
	Kind LoadErrorKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %s: %s", e.Path, e.Kind.sentinel())
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *LoadError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newLoadError(kind LoadErrorKind, path string, err error) *LoadError {
	return &LoadError{Kind: kind, Path: path, Err: err}
}
