// Package fault defines the error categories shared by every transport.
//
// A category is attached once, where a failure is first detected, and
// travels with the error through wrapping. Transports map categories to
// status codes and exit codes; they never look at message text.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies a failed turn.
type Category int

const (
	// Internal covers loop protection trips and anything uncategorized.
	Internal Category = iota
	// Validation covers malformed input, bad tool args and budget violations.
	Validation
	// Policy covers allowlist, overwrite and path-safety refusals.
	Policy
	// Upstream covers model provider and remote fetch failures.
	Upstream
)

func (c Category) String() string {
	switch c {
	case Validation:
		return "validation"
	case Policy:
		return "policy"
	case Upstream:
		return "upstream"
	default:
		return "internal"
	}
}

// MarshalText lets categories appear by name in JSON bodies and logs.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// HTTPStatus returns the status code a transport must answer with.
func (c Category) HTTPStatus() int {
	switch c {
	case Validation, Policy:
		return http.StatusBadRequest
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode returns the process exit code for CLI transports.
func (c Category) ExitCode() int {
	switch c {
	case Validation:
		return 2
	case Policy:
		return 3
	case Upstream:
		return 4
	default:
		return 1
	}
}

// Categorized is implemented by errors that carry their own category.
type Categorized interface {
	error
	Category() Category
}

// Error is the generic categorized error.
type Error struct {
	Cat    Category
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Reason != "" {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Cat.String() + " error"
}

func (e *Error) Unwrap() error { return e.Err }

// Category implements Categorized.
func (e *Error) Category() Category { return e.Cat }

// New creates a categorized error with a fixed reason.
func New(cat Category, reason string) error {
	return &Error{Cat: cat, Reason: reason}
}

// Wrap attaches a category and reason to err. A nil err yields nil.
func Wrap(cat Category, err error, reason string) error {
	if err == nil {
		return nil
	}
	return &Error{Cat: cat, Reason: reason, Err: err}
}

// Validationf creates a Validation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return &Error{Cat: Validation, Reason: fmt.Sprintf(format, args...)}
}

// Policyf creates a Policy error with a formatted reason.
func Policyf(format string, args ...any) error {
	return &Error{Cat: Policy, Reason: fmt.Sprintf(format, args...)}
}

// Upstreamf creates an Upstream error with a formatted reason.
func Upstreamf(format string, args ...any) error {
	return &Error{Cat: Upstream, Reason: fmt.Sprintf(format, args...)}
}

// Internalf creates an Internal error with a formatted reason.
func Internalf(format string, args ...any) error {
	return &Error{Cat: Internal, Reason: fmt.Sprintf(format, args...)}
}

// CategoryOf returns the category of the outermost categorized error in
// err's chain. Errors without one are Internal.
func CategoryOf(err error) Category {
	var c Categorized
	if errors.As(err, &c) {
		return c.Category()
	}
	return Internal
}

// Reason returns the human-readable reason for err, preferring the
// categorized error's own message over any outer wrapping.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var c Categorized
	if errors.As(err, &c) {
		return c.Error()
	}
	return err.Error()
}
