package tools

import (
	"errors"
	"fmt"

	"github.com/richinex/notewright/fault"
)

// ErrorKind names the stage at which a dispatch failed.
type ErrorKind int

const (
	// UnknownTool means the name is not registered.
	UnknownTool ErrorKind = iota
	// InvalidArgs means strict argument parsing or field validation failed.
	InvalidArgs
	// PolicyBlocked means a policy rule refused the call.
	PolicyBlocked
	// UpstreamFailure means a remote dependency failed after its retry budget.
	UpstreamFailure
	// ExecutionFailure means the tool failed locally.
	ExecutionFailure
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownTool:
		return "unknown_tool"
	case InvalidArgs:
		return "invalid_args"
	case PolicyBlocked:
		return "policy_blocked"
	case UpstreamFailure:
		return "upstream_failure"
	default:
		return "execution_failure"
	}
}

// Category maps the kind to its error category.
func (k ErrorKind) Category() fault.Category {
	switch k {
	case UnknownTool, InvalidArgs:
		return fault.Validation
	case PolicyBlocked:
		return fault.Policy
	case UpstreamFailure:
		return fault.Upstream
	default:
		return fault.Internal
	}
}

// DispatchError is a failed tool call. It implements fault.Categorized.
type DispatchError struct {
	Kind   ErrorKind
	Tool   string
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case UnknownTool:
		return fmt.Sprintf("unknown tool `%s`", e.Tool)
	case InvalidArgs:
		return fmt.Sprintf("invalid args for tool `%s`: %s", e.Tool, e.Reason)
	case PolicyBlocked:
		return fmt.Sprintf("policy block for tool `%s`: %s", e.Tool, e.Reason)
	case UpstreamFailure:
		return fmt.Sprintf("upstream failure in tool `%s`: %s", e.Tool, e.Reason)
	default:
		return fmt.Sprintf("tool `%s` failed: %s", e.Tool, e.Reason)
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Category implements fault.Categorized.
func (e *DispatchError) Category() fault.Category { return e.Kind.Category() }

func unknownTool(name string) error {
	return &DispatchError{Kind: UnknownTool, Tool: name}
}

func invalidArgs(tool, reason string) error {
	return &DispatchError{Kind: InvalidArgs, Tool: tool, Reason: reason}
}

func policyBlocked(tool, reason string) error {
	return &DispatchError{Kind: PolicyBlocked, Tool: tool, Reason: reason}
}

func upstreamFailure(tool string, err error) error {
	return &DispatchError{Kind: UpstreamFailure, Tool: tool, Reason: err.Error(), Err: err}
}

func executionFailure(tool string, err error) error {
	return &DispatchError{Kind: ExecutionFailure, Tool: tool, Reason: err.Error(), Err: err}
}

// transientError marks a failure that a retrying tool may attempt once more.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
