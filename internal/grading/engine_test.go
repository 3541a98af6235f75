package grading

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-school/internal/quiz"
)

func twoQuestions() []quiz.Question {
	return []quiz.Question{
		{ID: "q1", Options: []string{"a", "b"}, CorrectIndex: 1, Points: 1},
		{ID: "q2", Options: []string{"a", "b"}, CorrectIndex: 0, Points: 1},
	}
}

func TestScoreScenarios(t *testing.T) {
	cases := []struct {
		name  string
		subs  []Submission
		score float64
		recs  int
	}{
		{"all correct", []Submission{{"q1", 1}, {"q2", 0}}, 100, 2},
		{"second wrong", []Submission{{"q1", 1}, {"q2", 1}}, 50, 2},
		{"second unanswered", []Submission{{"q1", 1}}, 50, 1},
		{"nothing answered", nil, 0, 0},
		{"last duplicate wins", []Submission{{"q1", 0}, {"q2", 0}, {"q1", 1}}, 100, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Score(twoQuestions(), tc.subs)
			require.NoError(t, err)
			assert.Equal(t, tc.score, out.Score)
			assert.Len(t, out.Answers, tc.recs)
		})
	}
}

func TestScoreUnknownQuestion(t *testing.T) {
	_, err := Score(twoQuestions(), []Submission{{"q1", 1}, {"q9", 0}})
	var qnf *quiz.QuestionNotFoundError
	require.True(t, errors.As(err, &qnf))
	assert.Equal(t, "q9", qnf.QuestionID)
}

func TestScoreZeroDenominator(t *testing.T) {
	out, err := Score(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Score)

	zero := []quiz.Question{{ID: "q1", Options: []string{"a", "b"}, CorrectIndex: 0, Points: 0}}
	out, err = Score(zero, []Submission{{"q1", 0}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Score)
	require.Len(t, out.Answers, 1)
	assert.True(t, out.Answers[0].Correct)
}

func TestScoreWeightedPoints(t *testing.T) {
	qs := twoQuestions()
	qs[1].Points = 3
	out, err := Score(qs, []Submission{{"q2", 0}})
	require.NoError(t, err)
	assert.Equal(t, 75.0, out.Score)
	assert.Equal(t, 3.0, out.Answers[0].PointsAwarded)
}

// K of N one-point questions correct scores K/N, never K/K.
func TestScoreUnansweredCountsAgainst(t *testing.T) {
	const n = 10
	qs := make([]quiz.Question, n)
	for i := range qs {
		qs[i] = quiz.Question{ID: string(rune('a' + i)), Options: []string{"x", "y"}, CorrectIndex: 0, Points: 1}
	}
	for k := 0; k <= n; k++ {
		subs := make([]Submission, k)
		for i := 0; i < k; i++ {
			subs[i] = Submission{QuestionID: qs[i].ID, OptionIndex: 0}
		}
		out, err := Score(qs, subs)
		require.NoError(t, err)
		assert.InDelta(t, float64(k)/n*100, out.Score, 1e-9)
	}
}

func TestScoreDeterministicAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		qs := make([]quiz.Question, 1+rng.Intn(6))
		for i := range qs {
			qs[i] = quiz.Question{
				ID:           string(rune('a' + i)),
				Options:      []string{"0", "1", "2", "3"},
				CorrectIndex: rng.Intn(4),
				Points:       float64(rng.Intn(5)),
			}
		}
		var subs []Submission
		for i := 0; i < rng.Intn(10); i++ {
			subs = append(subs, Submission{QuestionID: qs[rng.Intn(len(qs))].ID, OptionIndex: rng.Intn(4)})
		}
		a, err := Score(qs, subs)
		require.NoError(t, err)
		b, err := Score(qs, subs)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.GreaterOrEqual(t, a.Score, 0.0)
		assert.LessOrEqual(t, a.Score, 100.0)
	}
}

// The learner answers with canonical indices, so the displayed order of
// options has no effect on correctness.
func TestScoreIgnoresDisplayOrder(t *testing.T) {
	def := quiz.QuizDefinition{ID: "quiz", ShuffleOptions: true, Questions: []quiz.Question{
		{ID: "q1", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 2, Points: 1},
	}}
	for _, seed := range []string{"s1", "s2", "s3", "s4"} {
		view := quiz.StudentView(def, def.Questions, seed)
		var picked int
		for _, opt := range view.Questions[0].Options {
			if opt.Text == "c" {
				picked = opt.Index
			}
		}
		out, err := Score(def.Questions, []Submission{{"q1", picked}})
		require.NoError(t, err)
		assert.Equal(t, 100.0, out.Score, "seed %s", seed)
	}
}

func TestScoreMap(t *testing.T) {
	out, err := ScoreMap(twoQuestions(), map[string]int{"q1": 1, "q2": 1})
	require.NoError(t, err)
	assert.Equal(t, 50.0, out.Score)
	assert.Equal(t, "q1", out.Answers[0].QuestionID)
}
