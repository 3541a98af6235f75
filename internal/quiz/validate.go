package quiz

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-school/internal/validate"
)

var (
	correctInRangeTag  = "correctinrange"
	correctInRangeText = "correct_index must point at one of the options"

	uniqueQuestionTag  = "uniqueqid"
	uniqueQuestionText = "question ids must be unique"
)

func init() {
	validate.Validate.RegisterStructValidation(newQuestionStructValidation, NewQuestion{})
	validate.Validate.RegisterStructValidation(newQuizStructValidation, NewQuiz{})
	validate.RegisterCustomTranslation(correctInRangeTag, correctInRangeText)
	validate.RegisterCustomTranslation(uniqueQuestionTag, uniqueQuestionText)
}

// NewQuestion is the authoring payload for one question.
type NewQuestion struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt" validate:"notblank"`
	Options      []string `json:"options" validate:"min=2,dive,notblank"`
	CorrectIndex int      `json:"correct_index" validate:"gte=0"`
	Points       *float64 `json:"points" validate:"omitempty,gte=0"`
	Feedback     string   `json:"feedback"`
	Order        *int     `json:"order"`
}

// NewQuiz is the authoring payload accepted by PUT/POST quiz endpoints.
type NewQuiz struct {
	ID               string        `json:"id"`
	Title            string        `json:"title" validate:"notblank"`
	AcademicPeriod   string        `json:"academic_period" validate:"notblank"`
	TimeLimitMin     *int          `json:"time_limit_min" validate:"omitempty,gt=0"`
	ShuffleQuestions bool          `json:"shuffle_questions"`
	ShuffleOptions   bool          `json:"shuffle_options"`
	MaxAttempts      *int          `json:"max_attempts" validate:"omitempty,gte=1"`
	MinPassingScore  *float64      `json:"min_passing_score" validate:"omitempty,gte=0,lte=100"`
	FeedbackMode     FeedbackMode  `json:"feedback_mode" validate:"omitempty,oneof=immediate at-end never"`
	Questions        []NewQuestion `json:"questions" validate:"required,min=1,dive"`
}

func (nq *NewQuiz) Validate() error {
	nq.Title = strings.TrimSpace(nq.Title)
	nq.AcademicPeriod = strings.TrimSpace(nq.AcademicPeriod)
	return validate.Struct(nq)
}

// Definition converts a validated payload into a QuizDefinition.
func (nq NewQuiz) Definition(createdBy string) QuizDefinition {
	mode := nq.FeedbackMode
	if mode == "" {
		mode = FeedbackAtEnd
	}
	def := QuizDefinition{
		ID:               nq.ID,
		Title:            nq.Title,
		AcademicPeriod:   nq.AcademicPeriod,
		TimeLimitMin:     nq.TimeLimitMin,
		ShuffleQuestions: nq.ShuffleQuestions,
		ShuffleOptions:   nq.ShuffleOptions,
		MaxAttempts:      nq.MaxAttempts,
		MinPassingScore:  nq.MinPassingScore,
		FeedbackMode:     mode,
		CreatedBy:        createdBy,
		Questions:        make([]Question, 0, len(nq.Questions)),
	}
	for i, q := range nq.Questions {
		points := DefaultPoints
		if q.Points != nil {
			points = *q.Points
		}
		order := i
		if q.Order != nil {
			order = *q.Order
		}
		def.Questions = append(def.Questions, Question{
			ID:           strings.TrimSpace(q.ID),
			Prompt:       strings.TrimSpace(q.Prompt),
			Options:      append([]string(nil), q.Options...),
			CorrectIndex: q.CorrectIndex,
			Points:       points,
			Feedback:     q.Feedback,
			Order:        order,
		})
	}
	SortQuestions(def.Questions)
	return def
}

// newQuestionStructValidation checks the correct index against the options list.
func newQuestionStructValidation(sl validator.StructLevel) {
	q, ok := sl.Current().Interface().(NewQuestion)
	if !ok {
		return
	}
	if q.CorrectIndex >= len(q.Options) {
		sl.ReportError(q.CorrectIndex, "correct_index", "CorrectIndex", correctInRangeTag, "")
	}
}

func newQuizStructValidation(sl validator.StructLevel) {
	nq, ok := sl.Current().Interface().(NewQuiz)
	if !ok {
		return
	}
	seen := make(map[string]struct{}, len(nq.Questions))
	for _, q := range nq.Questions {
		id := strings.TrimSpace(q.ID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			sl.ReportError(nq.Questions, "questions", "Questions", uniqueQuestionTag, "")
			return
		}
		seen[id] = struct{}{}
	}
}
