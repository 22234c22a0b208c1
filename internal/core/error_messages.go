// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When a reload or query fails, the code is returned alongside the message so
// operators can quote it.
//
// # Data Errors (DATA001-DATA099)
//
//	DATA001 - Data not loaded: no dataset has been loaded successfully yet
//	          Action: Load a dataset with POST /api/update-data
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - Source not found: the requested file does not exist
//	          Action: Check the file path relative to the data directory
//
//	LOAD002 - Parse failure: the file could not be read as CSV or XLSX
//	          Action: Ensure the file is a comma-separated or Excel file
//
//	LOAD003 - Malformed source: a required column is missing
//	          Action: Include Track, Artist and Album Name columns
//
//	LOAD004 - File too large: the file exceeds the configured size limit
//	          Action: Split the file or raise DATA_MAX_FILE_SIZE
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Invalid request: the request was refused
//	         Action: Use a file path inside the data directory
//
//	REQ002 - Request cancelled
//	         Patterns: "context canceled"
//
//	REQ003 - Request timed out
//	         Patterns: "context deadline exceeded"
//
// # Reload Errors (RLD001-RLD099)
//
//	RLD001 - System busy: every reload slot is occupied
//	         Action: Please wait a moment and try again
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or check the server logs
//
// # Matching
//
// Typed errors are matched first with errors.Is, in the order of
// errorKinds. Errors that carry no type information fall back to
// case-insensitive substring patterns.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorKind maps a sentinel error to its user message.
type errorKind struct {
	target error
	msg    UserMessage
}

// errorKinds is checked in order; ErrFileTooLarge precedes ErrParseFailure
// because an oversized file is reported as a parse failure.
var errorKinds = []errorKind{
	{
		target: ErrDataUnavailable,
		msg: UserMessage{
			Message: "Data not loaded",
			Action:  "Load a dataset with POST /api/update-data",
			Code:    "DATA001",
		},
	},
	{
		target: ErrNotFound,
		msg: UserMessage{
			Message: "Source file not found",
			Action:  "Check the file path relative to the data directory",
			Code:    "LOAD001",
		},
	},
	{
		target: ErrFileTooLarge,
		msg: UserMessage{
			Message: "Source file exceeds the maximum size",
			Action:  "Split the file or raise DATA_MAX_FILE_SIZE",
			Code:    "LOAD004",
		},
	},
	{
		target: ErrParseFailure,
		msg: UserMessage{
			Message: "Source file could not be parsed",
			Action:  "Ensure the file is a comma-separated or Excel file",
			Code:    "LOAD002",
		},
	},
	{
		target: ErrMalformed,
		msg: UserMessage{
			Message: "Source file is missing a required column",
			Action:  "Include Track, Artist and Album Name columns",
			Code:    "LOAD003",
		},
	},
	{
		target: ErrInvalidRequest,
		msg: UserMessage{
			Message: "Invalid request",
			Action:  "Use a file path inside the data directory",
			Code:    "REQ001",
		},
	},
	{
		target: ErrTooManyReloads,
		msg: UserMessage{
			Message: "System is busy processing other reloads",
			Action:  "Please wait a moment and try again",
			Code:    "RLD001",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch errors that arrive without a sentinel in their chain.
var errorPatterns = []errorPattern{
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or raise RELOAD_TIMEOUT",
			Code:    "REQ003",
		},
	},
	{
		pattern: "too many concurrent reloads",
		msg: UserMessage{
			Message: "System is busy processing other reloads",
			Action:  "Please wait a moment and try again",
			Code:    "RLD001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the server logs",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(&LoadError{Kind: NotFound, Path: "x.csv"})
//	// msg.Code == "LOAD001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether an error maps to a specific message rather
// than the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
