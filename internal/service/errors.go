package service

import (
	"errors"
	"fmt"

	"github.com/remaimber-it/drivetheory/internal/store"
)

// ErrEmptyPool matches every PoolError.
var ErrEmptyPool = errors.New("empty question pool")

// ErrInvalid matches every ValidationError.
var ErrInvalid = errors.New("invalid request")

// Empty pool reasons.
const (
	ReasonNoQuestions = "no_questions"
	ReasonNoMistakes  = "no_mistakes"
	ReasonNoSelection = "no_selection"
)

// NotFoundError reports a missing session, topic, question or session question.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == store.ErrNotFound
}

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// PoolError is returned when no question matches the requested mode or filter.
type PoolError struct {
	Reason  string
	Message string
}

func (e *PoolError) Error() string { return e.Message }

func (e *PoolError) Is(target error) bool {
	return target == ErrEmptyPool
}

var (
	errNoQuestions = &PoolError{Reason: ReasonNoQuestions, Message: "no questions found for this topic"}
	errNoMistakes  = &PoolError{Reason: ReasonNoMistakes, Message: "no mistake questions found"}
	errNoSelection = &PoolError{Reason: ReasonNoSelection, Message: "no questions selected for the test"}
)

// ValidationError reports a request that references something inconsistent,
// such as an option that does not belong to the question.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// StorageError wraps a failure of the local stores. The operation can be
// retried; nothing was partially applied to the caller's view.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// RemoteSyncError is returned next to a committed local result when the
// remote push failed.
type RemoteSyncError struct {
	SessionID string
	Err       error
}

func (e *RemoteSyncError) Error() string {
	return fmt.Sprintf("remote sync of session %s: %v", e.SessionID, e.Err)
}

func (e *RemoteSyncError) Unwrap() error { return e.Err }
