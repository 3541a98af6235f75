package grading

import (
	"math"

	"github.com/mind-engage/mindengage-school/internal/quiz"
)

// Submission is one learner answer: a question id and the canonical option index.
type Submission struct {
	QuestionID  string `json:"question_id"`
	OptionIndex int    `json:"option_index"`
}

// Outcome is the Scoring Engine output. Score is a percentage in [0,100],
// unrounded; rounding is left to presentation.
type Outcome struct {
	Score   float64
	Answers []quiz.AnswerRecord
}

// Score grades subs against questions. Every question counts toward the
// denominator whether answered or not. A submission naming a question outside
// the set fails with *quiz.QuestionNotFoundError. When the same question is
// submitted more than once the last submission wins.
//
// Score has no side effects and is deterministic for fixed inputs.
func Score(questions []quiz.Question, subs []Submission) (Outcome, error) {
	byID := make(map[string]quiz.Question, len(questions))
	total := 0.0
	for _, q := range questions {
		byID[q.ID] = q
		total += q.Points
	}

	chosen := make(map[string]int, len(subs))
	for _, s := range subs {
		if _, ok := byID[s.QuestionID]; !ok {
			return Outcome{}, &quiz.QuestionNotFoundError{QuestionID: s.QuestionID}
		}
		chosen[s.QuestionID] = s.OptionIndex
	}

	out := Outcome{Answers: make([]quiz.AnswerRecord, 0, len(chosen))}
	earned := 0.0
	// one record per answered question, in question order
	for _, q := range questions {
		idx, ok := chosen[q.ID]
		if !ok {
			continue
		}
		rec := quiz.AnswerRecord{QuestionID: q.ID, ChosenIndex: idx}
		if idx == q.CorrectIndex {
			rec.Correct = true
			rec.PointsAwarded = q.Points
			earned += q.Points
		}
		out.Answers = append(out.Answers, rec)
	}

	if total <= 0 {
		return out, nil
	}
	out.Score = clampPercent(earned / total * 100)
	return out, nil
}

// ScoreMap is Score for an answer map keyed by question id.
func ScoreMap(questions []quiz.Question, answers map[string]int) (Outcome, error) {
	subs := make([]Submission, 0, len(answers))
	for qid, idx := range answers {
		subs = append(subs, Submission{QuestionID: qid, OptionIndex: idx})
	}
	return Score(questions, subs)
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
