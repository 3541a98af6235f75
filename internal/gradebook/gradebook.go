// Package gradebook summarises a learner's quiz results for an academic period.
package gradebook

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-school/internal/grading"
	"github.com/mind-engage/mindengage-school/internal/quiz"
)

var ErrPeriodRequired = errors.New("academic period is required")

type QuizGrade struct {
	QuizID      string    `json:"quiz_id"`
	QuizTitle   string    `json:"quiz_title"`
	AttemptID   string    `json:"attempt_id"`
	Score       float64   `json:"score"`
	Passed      *bool     `json:"passed,omitempty"`
	TotalPoints float64   `json:"total_points"`
	Attempts    int       `json:"attempts"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Report struct {
	LearnerID string      `json:"learner_id"`
	Period    string      `json:"academic_period"`
	Quizzes   []QuizGrade `json:"quizzes"`
	// Overall is nil until the learner has a submitted attempt in the period.
	Overall *float64 `json:"overall,omitempty"`
}

type Service struct {
	store quiz.Store
}

func NewService(store quiz.Store) *Service { return &Service{store: store} }

// Report takes the learner's best submitted attempt on each live quiz of the
// period and averages them weighted by each quiz's total points. Scores are
// rounded for display only; the average runs on the raw values.
func (s *Service) Report(ctx context.Context, learnerID, period string) (Report, error) {
	if period == "" {
		return Report{}, ErrPeriodRequired
	}
	quizzes, err := s.store.ListQuizzes(ctx, quiz.QuizFilter{AcademicPeriod: period})
	if err != nil {
		return Report{}, errors.Wrap(err, "gradebook: list quizzes")
	}
	attempts, err := s.store.ListAttempts(ctx, quiz.AttemptFilter{
		LearnerID:      learnerID,
		AcademicPeriod: period,
		Status:         quiz.StatusSubmitted,
	})
	if err != nil {
		return Report{}, errors.Wrap(err, "gradebook: list attempts")
	}

	type best struct {
		attempt quiz.Attempt
		count   int
	}
	byQuiz := map[string]*best{}
	for _, a := range attempts {
		b, ok := byQuiz[a.QuizID]
		if !ok {
			byQuiz[a.QuizID] = &best{attempt: a, count: 1}
			continue
		}
		b.count++
		if better(a, b.attempt) {
			b.attempt = a
		}
	}

	rep := Report{LearnerID: learnerID, Period: period, Quizzes: []QuizGrade{}}
	var weighted []grading.Weighted
	for _, def := range quizzes {
		b, ok := byQuiz[def.ID]
		if !ok {
			continue
		}
		total := quiz.QuizDefinition{Questions: b.attempt.Questions}.TotalPoints()
		rep.Quizzes = append(rep.Quizzes, QuizGrade{
			QuizID:      def.ID,
			QuizTitle:   def.Title,
			AttemptID:   b.attempt.ID,
			Score:       quiz.Round1(b.attempt.Score),
			Passed:      quiz.Passed(def.MinPassingScore, b.attempt.Score),
			TotalPoints: total,
			Attempts:    b.count,
			SubmittedAt: *b.attempt.SubmittedAt,
		})
		weighted = append(weighted, grading.Weighted{Value: b.attempt.Score, Weight: total})
	}
	if len(weighted) > 0 {
		overall := round2(grading.WeightedAverage(weighted))
		rep.Overall = &overall
	}
	return rep, nil
}

// better prefers the higher score, then the earlier submission.
func better(a, b quiz.Attempt) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.SubmittedAt.Before(*b.SubmittedAt)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
