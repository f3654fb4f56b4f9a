package queuedto

import (
	"errors"

	"github.com/park285/court-queue/internal/queue"
	"github.com/park285/court-queue/internal/roster"
)

const (
	CodeAlreadyQueued    = "ALREADY_QUEUED_OR_PLAYING"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeAmbiguousName    = "AMBIGUOUS_NAME"
	CodeInternal         = "INTERNAL"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "court queue error"
}

// FromError classifies err by the sentinel it wraps.
func FromError(err error) DomainError {
	var de DomainError
	switch {
	case err == nil:
		return DomainError{}
	case errors.As(err, &de):
		return de
	case errors.Is(err, queue.ErrStoreUnavailable):
		// driver details stay in the logs
		return DomainError{Code: CodeStoreUnavailable, Message: "store unavailable, try again", Retryable: true}
	case errors.Is(err, queue.ErrAlreadyQueuedOrPlaying):
		return DomainError{Code: CodeAlreadyQueued, Message: err.Error()}
	case errors.Is(err, queue.ErrNotFound):
		return DomainError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, queue.ErrInvalidState):
		return DomainError{Code: CodeInvalidState, Message: err.Error()}
	case errors.Is(err, roster.ErrAmbiguousName):
		return DomainError{Code: CodeAmbiguousName, Message: err.Error()}
	case errors.Is(err, queue.ErrInvalidArgs):
		return DomainError{Code: CodeInvalidArgument, Message: err.Error()}
	default:
		return DomainError{Code: CodeInternal, Message: "internal error"}
	}
}
