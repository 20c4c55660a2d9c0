package eventfold

import (
	"errors"
	"fmt"

	"github.com/eventfold/eventfold/core"
)

var (
	// ErrAggregateNotFound returns if neither events nor a snapshot exist for the requested key
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrAggregateNotRegistered when constructing an aggregate whose type has no registered factory
	ErrAggregateNotRegistered = errors.New("aggregate not registered")

	// ErrEventNotRegistered when replaying or committing an event whose type is unknown to the register
	ErrEventNotRegistered = errors.New("event not registered")

	// ErrAggregateTypeMismatch when a cached key was loaded as a different aggregate type
	ErrAggregateTypeMismatch = errors.New("aggregate type mismatch")

	// ErrRepositoryClosed when the unit of work was already disposed
	ErrRepositoryClosed = errors.New("repository is closed")

	// ErrStreamNotBound when an aggregate tracks a change without the stream capability
	ErrStreamNotBound = errors.New("aggregate has no bound stream")

	// ErrDuplicateCommit is swallowed by the repository; it never crosses the
	// repository boundary but stream-level callers can observe it.
	ErrDuplicateCommit = core.ErrDuplicateCommit
)

// ConflictError signals an optimistic-concurrency violation at commit time.
// It wraps the store's version-mismatch detail.
type ConflictError struct {
	Bucket      string
	AggregateID string
	Expected    core.Version
	Actual      core.Version
	Err         error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting command on %s/%s: committed at version %d, store at %d",
		e.Bucket, e.AggregateID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// PersistenceError signals a store I/O or type-resolution failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// AggregateError marks a business-rule violation raised by aggregate logic.
type AggregateError struct {
	Err error
}

func (e *AggregateError) Error() string {
	return "aggregate fault: " + e.Err.Error()
}

func (e *AggregateError) Unwrap() error {
	return e.Err
}

// AggregateFault wraps err as a business-rule violation.
func AggregateFault(err error) error {
	return &AggregateError{Err: err}
}

// Recoverable reports whether err belongs to one of the failure classes a
// retrying caller is allowed to absorb: not-found, persistence failure,
// aggregate fault or conflicting command. Everything else is fatal.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	var (
		conflict    *ConflictError
		persistence *PersistenceError
		fault       *AggregateError
	)
	switch {
	case errors.Is(err, ErrAggregateNotFound),
		errors.Is(err, core.ErrConcurrency),
		errors.Is(err, ErrEventNotRegistered):
		return true
	case errors.As(err, &conflict), errors.As(err, &persistence), errors.As(err, &fault):
		return true
	}
	return false
}
