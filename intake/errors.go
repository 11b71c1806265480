package intake

import (
	"errors"
	"fmt"
)

var (
	ErrSurveyNotFound         = errors.New("survey not found")
	ErrSurveyNotActive        = errors.New("survey is not accepting responses")
	ErrSurveyNotStarted       = errors.New("survey has not started yet")
	ErrSurveyEnded            = errors.New("survey has ended")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrNotAssigned            = errors.New("survey is not assigned to this user")
	ErrAlreadyResponded       = errors.New("you already submitted a response to this survey")
	ErrMissingRequiredAnswer  = errors.New("missing answer to a required question")
	ErrStorage                = errors.New("storage failure")
)

// MissingAnswerError names the required question left unanswered.
// It matches ErrMissingRequiredAnswer with errors.Is.
type MissingAnswerError struct {
	QuestionID int
}

func (e *MissingAnswerError) Error() string {
	return fmt.Sprintf("%s: question %d", ErrMissingRequiredAnswer, e.QuestionID)
}

func (e *MissingAnswerError) Is(target error) bool {
	return target == ErrMissingRequiredAnswer
}

// StorageError wraps a repository failure. It matches ErrStorage with errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
