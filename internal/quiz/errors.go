package quiz

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("quiz not found")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAlreadySubmitted     = errors.New("attempt already submitted")
	ErrIncompleteSubmission = errors.New("every question must be answered before submitting")
	ErrNotOwner             = errors.New("attempt belongs to another learner")
	ErrTimeExpired          = errors.New("time limit reached")
	ErrNotAuthor            = errors.New("quiz belongs to another author")
	ErrQuizArchived         = errors.New("quiz is archived")
)

// QuestionNotFoundError means a submission referenced a question outside the quiz.
type QuestionNotFoundError struct {
	QuestionID string
}

func (e *QuestionNotFoundError) Error() string {
	return fmt.Sprintf("question %q is not part of this quiz", e.QuestionID)
}

type QuizUnavailableError struct {
	QuizID string
	Err    error
}

func (e *QuizUnavailableError) Error() string {
	return fmt.Sprintf("quiz %q unavailable", e.QuizID)
}

func (e *QuizUnavailableError) Unwrap() error { return e.Err }

type AttemptLimitExceededError struct {
	QuizID      string
	MaxAttempts int
}

func (e *AttemptLimitExceededError) Error() string {
	return fmt.Sprintf("attempt limit of %d reached for quiz %q", e.MaxAttempts, e.QuizID)
}

// OptionOutOfRangeError is returned when a chosen option index does not exist on the question.
type OptionOutOfRangeError struct {
	QuestionID string
	Index      int
}

func (e *OptionOutOfRangeError) Error() string {
	return fmt.Sprintf("option %d does not exist on question %q", e.Index, e.QuestionID)
}
