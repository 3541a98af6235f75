package gradebook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-school/internal/quiz"
)

func putQuiz(t *testing.T, store quiz.Store, title, period string, points ...float64) quiz.QuizDefinition {
	t.Helper()
	def := quiz.QuizDefinition{Title: title, AcademicPeriod: period, FeedbackMode: quiz.FeedbackAtEnd}
	for i, p := range points {
		def.Questions = append(def.Questions, quiz.Question{
			Options: []string{"a", "b"}, CorrectIndex: 0, Points: p, Order: i,
		})
	}
	saved, err := store.PutQuiz(context.Background(), def)
	require.NoError(t, err)
	return saved
}

func submitted(t *testing.T, store quiz.Store, def quiz.QuizDefinition, learner string, score float64, at time.Time) string {
	t.Helper()
	ctx := context.Background()
	id, err := store.CreateAttempt(ctx, quiz.NewAttempt{
		QuizID: def.ID, LearnerID: learner, StartedAt: at.Add(-time.Minute),
		QuizVersion: def.Version, Questions: def.Questions,
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateAttempt(ctx, id, quiz.AttemptUpdate{Score: score, SubmittedAt: at}))
	return id
}

func TestReport(t *testing.T) {
	ctx := context.Background()
	store := quiz.NewInMemoryStore()
	threshold := 60.0

	a := putQuiz(t, store, "Algebra", "2025-T1", 1, 1)
	b := putQuiz(t, store, "Biology", "2025-T1", 6)
	b.MinPassingScore = &threshold
	b, err := store.PutQuiz(ctx, b)
	require.NoError(t, err)
	other := putQuiz(t, store, "History", "2024-T3", 1)
	unattempted := putQuiz(t, store, "Chemistry", "2025-T1", 1)

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	submitted(t, store, a, "s1", 50, t0)
	bestA := submitted(t, store, a, "s1", 100, t0.Add(time.Hour))
	submitted(t, store, a, "s1", 100, t0.Add(2*time.Hour))
	bestB := submitted(t, store, b, "s1", 49.96, t0)
	submitted(t, store, other, "s1", 10, t0)
	submitted(t, store, a, "s2", 0, t0)
	_, err = store.CreateAttempt(ctx, quiz.NewAttempt{QuizID: b.ID, LearnerID: "s1", StartedAt: t0, Questions: b.Questions})
	require.NoError(t, err)

	rep, err := NewService(store).Report(ctx, "s1", "2025-T1")
	require.NoError(t, err)
	require.Len(t, rep.Quizzes, 2)

	grades := map[string]QuizGrade{}
	for _, g := range rep.Quizzes {
		grades[g.QuizID] = g
	}
	assert.NotContains(t, grades, unattempted.ID)

	ga := grades[a.ID]
	assert.Equal(t, bestA, ga.AttemptID, "ties go to the earlier submission")
	assert.Equal(t, 100.0, ga.Score)
	assert.Equal(t, 3, ga.Attempts)
	assert.Equal(t, 2.0, ga.TotalPoints)
	assert.Nil(t, ga.Passed)

	gb := grades[b.ID]
	assert.Equal(t, bestB, gb.AttemptID)
	assert.Equal(t, 50.0, gb.Score)
	require.NotNil(t, gb.Passed)
	assert.False(t, *gb.Passed)

	// (100*2 + 49.96*6) / 8
	require.NotNil(t, rep.Overall)
	assert.InDelta(t, 62.47, *rep.Overall, 1e-9)
}

func TestReportEmptyAndArchived(t *testing.T) {
	ctx := context.Background()
	store := quiz.NewInMemoryStore()
	svc := NewService(store)

	rep, err := svc.Report(ctx, "s1", "2025-T1")
	require.NoError(t, err)
	assert.Empty(t, rep.Quizzes)
	assert.Nil(t, rep.Overall)

	q := putQuiz(t, store, "Algebra", "2025-T1", 1)
	submitted(t, store, q, "s1", 80, time.Now())
	require.NoError(t, store.ArchiveQuiz(ctx, q.ID))
	rep, err = svc.Report(ctx, "s1", "2025-T1")
	require.NoError(t, err)
	assert.Empty(t, rep.Quizzes)

	_, err = svc.Report(ctx, "s1", "")
	assert.ErrorIs(t, err, ErrPeriodRequired)
}
