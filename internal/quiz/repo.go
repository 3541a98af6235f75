package quiz

import (
	"context"
	"time"
)

type Store interface {
	// PutQuiz saves q as a new quiz, or as the next version of an existing one.
	// Rewrites fail with ErrNotAuthor when q.CreatedBy differs from the stored
	// author and with ErrQuizArchived once the quiz is archived.
	PutQuiz(ctx context.Context, q QuizDefinition) (QuizDefinition, error)
	// GetQuizWithQuestions returns ErrNotFound for missing or archived quizzes.
	GetQuizWithQuestions(ctx context.Context, id string) (QuizDefinition, error)
	ArchiveQuiz(ctx context.Context, id string) error
	ListQuizzes(ctx context.Context, f QuizFilter) ([]QuizDefinition, error)

	CreateAttempt(ctx context.Context, na NewAttempt) (string, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// UpdateAttempt writes the submission once; a second call returns ErrAlreadySubmitted.
	UpdateAttempt(ctx context.Context, id string, u AttemptUpdate) error
	CountSubmittedAttempts(ctx context.Context, quizID, learnerID string) (int, error)
	ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error)
	// ListOverdueAttempts returns in-progress attempts whose deadline is at or before now.
	ListOverdueAttempts(ctx context.Context, now time.Time) ([]Attempt, error)
}
