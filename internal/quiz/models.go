package quiz

import (
	"sort"
	"time"
)

type FeedbackMode string

const (
	FeedbackImmediate FeedbackMode = "immediate"
	FeedbackAtEnd     FeedbackMode = "at-end"
	FeedbackNever     FeedbackMode = "never"
)

// ShowsDetail reports whether per-question detail may be shown once an attempt is submitted.
func (m FeedbackMode) ShowsDetail() bool {
	return m == FeedbackImmediate || m == FeedbackAtEnd
}

const DefaultPoints = 1.0

type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Points       float64  `json:"points"`
	Feedback     string   `json:"feedback,omitempty"`
	Order        int      `json:"order"`
}

type QuizDefinition struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	AcademicPeriod   string       `json:"academic_period"`
	TimeLimitMin     *int         `json:"time_limit_min,omitempty"`
	ShuffleQuestions bool         `json:"shuffle_questions"`
	ShuffleOptions   bool         `json:"shuffle_options"`
	MaxAttempts      *int         `json:"max_attempts,omitempty"`
	MinPassingScore  *float64     `json:"min_passing_score,omitempty"`
	FeedbackMode     FeedbackMode `json:"feedback_mode"`
	Version          int          `json:"version"`
	CreatedBy        string       `json:"created_by,omitempty"`
	Questions        []Question   `json:"questions"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// TimeLimit returns the countdown duration, or 0 when the quiz is untimed.
func (q QuizDefinition) TimeLimit() time.Duration {
	if q.TimeLimitMin == nil || *q.TimeLimitMin <= 0 {
		return 0
	}
	return time.Duration(*q.TimeLimitMin*60) * time.Second
}

// TotalPoints sums the point value of every question.
func (q QuizDefinition) TotalPoints() float64 {
	total := 0.0
	for _, qq := range q.Questions {
		total += qq.Points
	}
	return total
}

func (q QuizDefinition) Question(id string) (Question, bool) {
	for _, qq := range q.Questions {
		if qq.ID == id {
			return qq, true
		}
	}
	return Question{}, false
}

// SortQuestions orders questions by Order. Ties keep insertion order.
func SortQuestions(qs []Question) {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
}

type AnswerRecord struct {
	QuestionID    string  `json:"question_id"`
	ChosenIndex   int     `json:"chosen_index"`
	Correct       bool    `json:"correct"`
	PointsAwarded float64 `json:"points_awarded"`
}

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
)

type Attempt struct {
	ID          string         `json:"id"`
	QuizID      string         `json:"quiz_id"`
	LearnerID   string         `json:"learner_id"`
	QuizVersion int            `json:"quiz_version"`
	StartedAt   time.Time      `json:"started_at"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	Answers     []AnswerRecord `json:"answers"`
	Score       float64        `json:"score"`

	// Questions is the snapshot taken at start; scoring runs against it.
	Questions []Question `json:"-"`
}

func (a Attempt) Status() Status {
	if a.SubmittedAt != nil {
		return StatusSubmitted
	}
	return StatusInProgress
}

// NewAttempt carries what CreateAttempt needs to open an attempt row.
type NewAttempt struct {
	QuizID      string
	LearnerID   string
	StartedAt   time.Time
	Deadline    *time.Time
	QuizVersion int
	Questions   []Question
}

// AttemptUpdate is the one-time write made at submission.
type AttemptUpdate struct {
	Answers     []AnswerRecord
	Score       float64
	SubmittedAt time.Time
}

type QuizFilter struct {
	AcademicPeriod string
	CreatedBy      string
	Limit          int
	Offset         int
}

type AttemptFilter struct {
	QuizID         string
	LearnerID      string
	AcademicPeriod string
	Status         Status // "" for any
	Limit          int
	Offset         int
}
