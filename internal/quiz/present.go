package quiz

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// DisplayOption is one option as shown to a learner. Index is the canonical
// position in Question.Options and is what the learner answers with.
type DisplayOption struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type DisplayQuestion struct {
	ID      string          `json:"id"`
	Prompt  string          `json:"prompt"`
	Points  float64         `json:"points"`
	Options []DisplayOption `json:"options"`
}

// StudentQuiz is a quiz with answers and feedback stripped.
type StudentQuiz struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	AcademicPeriod string            `json:"academic_period"`
	TimeLimitMin   *int              `json:"time_limit_min,omitempty"`
	MaxAttempts    *int              `json:"max_attempts,omitempty"`
	FeedbackMode   FeedbackMode      `json:"feedback_mode"`
	Version        int               `json:"version"`
	Questions      []DisplayQuestion `json:"questions"`
}

// StudentView renders questions for a learner. When the quiz asks for shuffling,
// the order is derived from seed so the same attempt always sees the same layout.
func StudentView(def QuizDefinition, questions []Question, seed string) StudentQuiz {
	out := StudentQuiz{
		ID:             def.ID,
		Title:          def.Title,
		AcademicPeriod: def.AcademicPeriod,
		TimeLimitMin:   def.TimeLimitMin,
		MaxAttempts:    def.MaxAttempts,
		FeedbackMode:   def.FeedbackMode,
		Version:        def.Version,
		Questions:      make([]DisplayQuestion, 0, len(questions)),
	}
	rng := seededRand(seed)
	for _, q := range questions {
		dq := DisplayQuestion{ID: q.ID, Prompt: q.Prompt, Points: q.Points}
		dq.Options = make([]DisplayOption, len(q.Options))
		for i, text := range q.Options {
			dq.Options[i] = DisplayOption{Index: i, Text: text}
		}
		if def.ShuffleOptions {
			rng.Shuffle(len(dq.Options), func(i, j int) { dq.Options[i], dq.Options[j] = dq.Options[j], dq.Options[i] })
		}
		out.Questions = append(out.Questions, dq)
	}
	if def.ShuffleQuestions {
		rng.Shuffle(len(out.Questions), func(i, j int) {
			out.Questions[i], out.Questions[j] = out.Questions[j], out.Questions[i]
		})
	}
	return out
}

func seededRand(seed string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// AnswerFeedback is returned per selection when the quiz runs in immediate mode.
type AnswerFeedback struct {
	QuestionID   string `json:"question_id"`
	ChosenIndex  int    `json:"chosen_index"`
	Correct      bool   `json:"correct"`
	CorrectIndex int    `json:"correct_index"`
	Feedback     string `json:"feedback,omitempty"`
}

func FeedbackFor(q Question, chosen int) AnswerFeedback {
	return AnswerFeedback{
		QuestionID:   q.ID,
		ChosenIndex:  chosen,
		Correct:      chosen == q.CorrectIndex,
		CorrectIndex: q.CorrectIndex,
		Feedback:     q.Feedback,
	}
}

type QuestionDetail struct {
	QuestionID    string  `json:"question_id"`
	ChosenIndex   *int    `json:"chosen_index"`
	Correct       bool    `json:"correct"`
	CorrectIndex  int     `json:"correct_index"`
	Points        float64 `json:"points"`
	PointsAwarded float64 `json:"points_awarded"`
	Feedback      string  `json:"feedback,omitempty"`
}

// Result is the learner-facing outcome of an attempt.
type Result struct {
	AttemptID   string           `json:"attempt_id"`
	QuizID      string           `json:"quiz_id"`
	QuizVersion int              `json:"quiz_version"`
	Status      Status           `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	Score       *float64         `json:"score,omitempty"`
	Passed      *bool            `json:"passed,omitempty"`
	Details     []QuestionDetail `json:"details,omitempty"`
}

// BuildResult shapes an attempt for display under def's feedback rules.
// Score and pass/fail only appear once the attempt is submitted.
func BuildResult(def QuizDefinition, a Attempt) Result {
	res := Result{
		AttemptID:   a.ID,
		QuizID:      a.QuizID,
		QuizVersion: a.QuizVersion,
		Status:      a.Status(),
		StartedAt:   a.StartedAt,
		Deadline:    a.Deadline,
		SubmittedAt: a.SubmittedAt,
	}
	if a.SubmittedAt == nil {
		return res
	}
	score := Round1(a.Score)
	res.Score = &score
	res.Passed = Passed(def.MinPassingScore, a.Score)
	if !def.FeedbackMode.ShowsDetail() {
		return res
	}

	chosen := make(map[string]AnswerRecord, len(a.Answers))
	for _, ar := range a.Answers {
		chosen[ar.QuestionID] = ar
	}
	for _, q := range a.Questions {
		d := QuestionDetail{
			QuestionID:   q.ID,
			CorrectIndex: q.CorrectIndex,
			Points:       q.Points,
			Feedback:     q.Feedback,
		}
		if ar, ok := chosen[q.ID]; ok {
			idx := ar.ChosenIndex
			d.ChosenIndex = &idx
			d.Correct = ar.Correct
			d.PointsAwarded = ar.PointsAwarded
		}
		res.Details = append(res.Details, d)
	}
	return res
}

// Passed compares the unrounded score against the threshold. nil means the quiz has no threshold.
func Passed(minPassing *float64, score float64) *bool {
	if minPassing == nil {
		return nil
	}
	ok := score >= *minPassing
	return &ok
}

// Round1 rounds to one decimal place for display.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
