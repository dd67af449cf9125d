// Package errs is the pipeline's error taxonomy. Every failure that reaches a
// caller carries one Kind with a stable machine code.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindNotFound          Kind = "not_found"
	KindIncompletePhases  Kind = "incomplete_phases"
	KindGenerationFailed  Kind = "generation_failed"
	KindParseFailure      Kind = "parse_failure"
	KindAssemblyFailure   Kind = "assembly_failure"
	KindNotReady          Kind = "not_ready"
	KindNoFiles           Kind = "no_files"
	KindAlreadyInProgress Kind = "already_in_progress"
	KindPlanApproved      Kind = "plan_approved"
	KindInvalidArgument   Kind = "invalid_argument"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
	// Found is the number of distinct phases present, set for KindIncompletePhases.
	Found int
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return kind != "" && KindOf(err) == kind
}

func Unauthorized(what string) *Error {
	return New(KindUnauthorized, what+" is not owned by the caller")
}

func NotFound(what string) *Error {
	return New(KindNotFound, what+" not found")
}

func IncompletePhases(found, required int) *Error {
	return &Error{
		Kind:  KindIncompletePhases,
		Msg:   fmt.Sprintf("%d of %d phases answered", found, required),
		Found: found,
	}
}

// GenerationFailed keeps the provider's message in the chain.
func GenerationFailed(err error) *Error {
	return Wrap(KindGenerationFailed, "plan generation failed", err)
}

func AssemblyFailure(msg string) *Error {
	return New(KindAssemblyFailure, msg)
}

func NotReady(status string) *Error {
	return New(KindNotReady, "export is "+status+", not completed")
}

func NoFiles() *Error {
	return New(KindNoFiles, "export has no files")
}

func AlreadyInProgress(what string) *Error {
	return New(KindAlreadyInProgress, what+" already in progress")
}

func InvalidArgument(msg string) *Error {
	return New(KindInvalidArgument, msg)
}

func PlanApproved() *Error {
	return New(KindPlanApproved, "plan is approved and can no longer be regenerated")
}
