package parallel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShutdown is returned when the run is interrupted by context cancellation
// before every object reached a terminal state.
var ErrShutdown = errors.New("parallel: shutdown requested")

// Explainer is implemented by errors that carry a human-readable explanation
// meant to be shown to the user verbatim, such as API errors.
type Explainer interface {
	error
	Explanation() string
}

// OperationError is a domain failure whose message is shown to the user.
type OperationError struct {
	Msg string
}

func (e *OperationError) Error() string {
	return e.Msg
}

// UpstreamError marks an object that was not processed because one of its
// dependencies failed.
type UpstreamError struct {
	// Dependency is the failed dependency that caused the skip.
	Dependency any
}

func (e *UpstreamError) Error() string {
	return "skipped due to upstream failure"
}

// PanicError wraps a panic recovered from a work function.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// CycleError is returned before any work starts when the dependencies form a
// cycle. Names lists the objects of one cycle in dependency order.
type CycleError struct {
	Names []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s -> %s", strings.Join(e.Names, " -> "), e.Names[0])
}

// FailureKind classifies the error of a failed Event.
type FailureKind int

const (
	// FailureUnexpected is any error that is not one of the kinds below.
	FailureUnexpected FailureKind = iota
	// FailureExplained is an error implementing Explainer.
	FailureExplained
	// FailureOperation is an *OperationError.
	FailureOperation
	// FailureUpstream is an *UpstreamError.
	FailureUpstream
)

func (k FailureKind) String() string {
	switch k {
	case FailureExplained:
		return "explained"
	case FailureOperation:
		return "operation"
	case FailureUpstream:
		return "upstream"
	default:
		return "unexpected"
	}
}

// Classify returns the kind of err and the message to report for it. The
// message is empty for upstream failures, which are never reported on their
// own.
func Classify(err error) (FailureKind, string) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return FailureUpstream, ""
	}
	var explained Explainer
	if errors.As(err, &explained) {
		return FailureExplained, explained.Explanation()
	}
	var operation *OperationError
	if errors.As(err, &operation) {
		return FailureOperation, operation.Msg
	}
	return FailureUnexpected, err.Error()
}
