package notify

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-school/internal/logger"
)

// Directory resolves a user id to an email address.
type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
}

// ResultNotice describes a scored attempt. Score is already rounded for display.
type ResultNotice struct {
	AttemptID string
	QuizID    string
	QuizTitle string
	LearnerID string
	Score     float64
	Passed    *bool
}

func (n ResultNotice) Subject() string {
	return fmt.Sprintf("Your result for %s", n.QuizTitle)
}

func (n ResultNotice) Text() string {
	s := fmt.Sprintf("You scored %.1f%% on %s.", n.Score, n.QuizTitle)
	if n.Passed != nil {
		if *n.Passed {
			s += " You passed."
		} else {
			s += " You did not reach the passing score this time."
		}
	}
	return s
}

type Notifier interface {
	AttemptScored(ctx context.Context, n ResultNotice) error
}

// LogNotifier writes notices to the logger instead of sending mail.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (l *LogNotifier) AttemptScored(_ context.Context, n ResultNotice) error {
	l.log.Info("result notice: "+n.Text(), map[string]interface{}{
		"attempt_id": n.AttemptID,
		"learner_id": n.LearnerID,
	})
	return nil
}
