package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-school/internal/drafts"
	"github.com/mind-engage/mindengage-school/internal/grading"
	"github.com/mind-engage/mindengage-school/internal/logger"
	"github.com/mind-engage/mindengage-school/internal/notify"
	"github.com/mind-engage/mindengage-school/internal/quiz"
	"github.com/mind-engage/mindengage-school/internal/realtime"
)

// Publisher receives attempt lifecycle events.
type Publisher interface {
	Publish(attemptID, typ string, payload interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, interface{}) {}

type Option func(*Controller)

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithAfterFunc replaces time.AfterFunc for the countdown timers.
func WithAfterFunc(f func(time.Duration, func()) Timer) Option {
	return func(c *Controller) { c.afterFunc = f }
}

func WithDrafts(d drafts.Store) Option {
	return func(c *Controller) { c.drafts = d }
}

func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.events = p }
}

// WithNotifier sends a result notice after each successful submission.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithSubmitTimeout bounds timer-driven submissions and notifications.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Controller) { c.submitTimeout = d }
}

// Controller drives attempts from start to submission. It owns one countdown
// timer per timed attempt and guarantees that each attempt is scored and
// persisted at most once, whichever of the learner or the timer gets there first.
type Controller struct {
	store         quiz.Store
	drafts        drafts.Store
	events        Publisher
	notifier      notify.Notifier
	log           logger.Logger
	now           func() time.Time
	afterFunc     func(time.Duration, func()) Timer
	submitTimeout time.Duration

	startMu  sync.Mutex
	mu       sync.Mutex
	sessions map[string]*session
	bg       sync.WaitGroup
}

func NewController(store quiz.Store, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		drafts:        drafts.NewMemoryStore(),
		events:        nopPublisher{},
		log:           logger.Nop{},
		now:           time.Now,
		afterFunc:     stdAfterFunc,
		submitTimeout: 30 * time.Second,
		sessions:      map[string]*session{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type Started struct {
	Attempt quiz.Attempt     `json:"attempt"`
	Quiz    quiz.StudentQuiz `json:"quiz"`
	// Resumed is set when the learner already had the quiz in progress.
	Resumed bool `json:"resumed"`
}

// Start opens an attempt for learnerID, or hands back the one the learner
// already has in progress on the quiz. It fails with *quiz.QuizUnavailableError
// when the quiz cannot be loaded and *quiz.AttemptLimitExceededError when the
// learner has used up the quiz's attempts; no attempt is created in either case.
func (c *Controller) Start(ctx context.Context, quizID, learnerID string) (Started, error) {
	// one learner never holds two open attempts on a quiz
	c.startMu.Lock()
	defer c.startMu.Unlock()

	def, err := c.loadQuiz(ctx, quizID)
	if err != nil {
		return Started{}, err
	}
	if st, ok, err := c.resume(ctx, def, learnerID); err != nil || ok {
		return st, err
	}
	if def.MaxAttempts != nil {
		n, err := c.store.CountSubmittedAttempts(ctx, quizID, learnerID)
		if err != nil {
			return Started{}, err
		}
		if n >= *def.MaxAttempts {
			return Started{}, &quiz.AttemptLimitExceededError{QuizID: quizID, MaxAttempts: *def.MaxAttempts}
		}
	}

	now := c.clock()
	na := quiz.NewAttempt{
		QuizID:      quizID,
		LearnerID:   learnerID,
		StartedAt:   now,
		QuizVersion: def.Version,
		Questions:   def.Questions,
	}
	limit := def.TimeLimit()
	if limit > 0 {
		deadline := now.Add(limit)
		na.Deadline = &deadline
	}
	id, err := c.store.CreateAttempt(ctx, na)
	if errors.Is(err, quiz.ErrNotFound) {
		return Started{}, &quiz.QuizUnavailableError{QuizID: quizID, Err: err}
	}
	if err != nil {
		return Started{}, err
	}

	a := quiz.Attempt{
		ID:          id,
		QuizID:      quizID,
		LearnerID:   learnerID,
		QuizVersion: def.Version,
		StartedAt:   now,
		Deadline:    na.Deadline,
		Questions:   def.Questions,
	}
	s := &session{attempt: a, rules: rulesOf(def), state: quiz.StatusInProgress, answers: map[string]int{}}

	c.mu.Lock()
	if limit > 0 {
		s.timer = c.afterFunc(limit, func() { c.expire(id) })
	}
	c.sessions[id] = s
	c.mu.Unlock()

	c.events.Publish(id, realtime.EventStarted, map[string]interface{}{
		"deadline":  a.Deadline,
		"questions": len(a.Questions),
	})
	return Started{Attempt: a, Quiz: quiz.StudentView(def, a.Questions, id)}, nil
}

// resume returns the learner's open attempt on def, if any. An open attempt
// already past its deadline is submitted first and does not count as open.
func (c *Controller) resume(ctx context.Context, def quiz.QuizDefinition, learnerID string) (Started, bool, error) {
	open, err := c.store.ListAttempts(ctx, quiz.AttemptFilter{
		QuizID:    def.ID,
		LearnerID: learnerID,
		Status:    quiz.StatusInProgress,
	})
	if err != nil {
		return Started{}, false, err
	}
	for _, a := range open {
		s, err := c.lookup(ctx, a.ID)
		if err != nil {
			return Started{}, false, err
		}
		s.mu.Lock()
		if s.state == quiz.StatusSubmitted {
			s.mu.Unlock()
			continue
		}
		if s.expired(c.now()) {
			_, err := c.submitLocked(ctx, s)
			s.mu.Unlock()
			if err != nil {
				return Started{}, false, err
			}
			continue
		}
		st := Started{
			Attempt: s.attempt,
			Quiz:    quiz.StudentView(def, s.attempt.Questions, s.attempt.ID),
			Resumed: true,
		}
		s.mu.Unlock()
		return st, true, nil
	}
	return Started{}, false, nil
}

type Selection struct {
	AttemptID string               `json:"attempt_id"`
	Answered  int                  `json:"answered"`
	Total     int                  `json:"total"`
	Feedback  *quiz.AnswerFeedback `json:"feedback,omitempty"`
}

// Select records the learner's choice for one question. optionIndex is the
// canonical index of the option, not its displayed position. Choices stay in
// memory (mirrored to the draft store) until submission.
func (c *Controller) Select(ctx context.Context, learnerID, attemptID, questionID string, optionIndex int) (Selection, error) {
	s, err := c.lookup(ctx, attemptID)
	if err != nil {
		return Selection{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.LearnerID != learnerID {
		return Selection{}, quiz.ErrNotOwner
	}
	if s.state == quiz.StatusSubmitted {
		return Selection{}, quiz.ErrAlreadySubmitted
	}
	q, ok := quiz.QuizDefinition{Questions: s.attempt.Questions}.Question(questionID)
	if !ok {
		return Selection{}, &quiz.QuestionNotFoundError{QuestionID: questionID}
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return Selection{}, &quiz.OptionOutOfRangeError{QuestionID: questionID, Index: optionIndex}
	}
	if s.expired(c.now()) {
		return Selection{}, quiz.ErrTimeExpired
	}

	s.answers[questionID] = optionIndex
	if err := c.drafts.Put(ctx, attemptID, questionID, optionIndex); err != nil {
		c.log.Warn("attempt: saving draft answer", err, map[string]interface{}{"attempt_id": attemptID})
	}

	sel := Selection{AttemptID: attemptID, Answered: s.answered(), Total: len(s.attempt.Questions)}
	if s.rules.FeedbackMode == quiz.FeedbackImmediate {
		fb := quiz.FeedbackFor(q, optionIndex)
		sel.Feedback = &fb
	}
	c.events.Publish(attemptID, realtime.EventAnswered, map[string]interface{}{
		"question_id": questionID,
		"answered":    sel.Answered,
		"total":       sel.Total,
	})
	return sel, nil
}

// Submit is the learner's explicit submission. Every question must have an
// answer. Submitting an attempt that is already submitted returns its stored
// result and changes nothing.
func (c *Controller) Submit(ctx context.Context, learnerID, attemptID string) (quiz.Result, error) {
	s, err := c.lookup(ctx, attemptID)
	if err != nil {
		return quiz.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.LearnerID != learnerID {
		return quiz.Result{}, quiz.ErrNotOwner
	}
	if s.state == quiz.StatusSubmitted {
		return quiz.BuildResult(s.rules, s.attempt), nil
	}
	if !s.complete() {
		return quiz.Result{}, quiz.ErrIncompleteSubmission
	}
	return c.submitLocked(ctx, s)
}

// ForceSubmit scores the attempt with whatever answers it has. It is what the
// countdown and the overdue sweep call; it is a no-op on submitted attempts.
func (c *Controller) ForceSubmit(ctx context.Context, attemptID string) (quiz.Result, error) {
	s, err := c.lookup(ctx, attemptID)
	if err != nil {
		return quiz.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == quiz.StatusSubmitted {
		return quiz.BuildResult(s.rules, s.attempt), nil
	}
	return c.submitLocked(ctx, s)
}

// submitLocked scores and persists. On any error the session stays in progress
// so the submission can be retried. Callers hold s.mu.
func (c *Controller) submitLocked(ctx context.Context, s *session) (quiz.Result, error) {
	id := s.attempt.ID
	def, err := c.loadQuiz(ctx, s.attempt.QuizID)
	if err != nil {
		return quiz.Result{}, err
	}
	s.rules = rulesOf(def)

	out, err := grading.ScoreMap(s.attempt.Questions, s.answers)
	if err != nil {
		return quiz.Result{}, err
	}
	at := c.clock()
	err = c.store.UpdateAttempt(ctx, id, quiz.AttemptUpdate{Answers: out.Answers, Score: out.Score, SubmittedAt: at})
	if errors.Is(err, quiz.ErrAlreadySubmitted) {
		// another process got there first; adopt its result
		stored, gerr := c.store.GetAttempt(ctx, id)
		if gerr != nil {
			return quiz.Result{}, gerr
		}
		c.finish(s, stored)
		return quiz.BuildResult(s.rules, s.attempt), nil
	}
	if err != nil {
		return quiz.Result{}, errors.Wrap(err, "attempt: persist submission")
	}

	a := s.attempt
	a.SubmittedAt = &at
	a.Score = out.Score
	a.Answers = out.Answers
	c.finish(s, a)

	res := quiz.BuildResult(s.rules, s.attempt)
	c.events.Publish(id, realtime.EventSubmitted, map[string]interface{}{
		"score":  quiz.Round1(a.Score),
		"passed": res.Passed,
	})
	c.notify(notify.ResultNotice{
		AttemptID: id,
		QuizID:    a.QuizID,
		QuizTitle: def.Title,
		LearnerID: a.LearnerID,
		Score:     quiz.Round1(a.Score),
		Passed:    res.Passed,
	})
	return res, nil
}

func (c *Controller) finish(s *session, a quiz.Attempt) {
	s.attempt = a
	s.state = quiz.StatusSubmitted
	s.stopTimer()
	if err := c.drafts.Delete(context.Background(), a.ID); err != nil {
		c.log.Warn("attempt: deleting draft", err, map[string]interface{}{"attempt_id": a.ID})
	}
	c.forget(a.ID)
}

func (c *Controller) notify(n notify.ResultNotice) {
	if c.notifier == nil {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
		defer cancel()
		if err := c.notifier.AttemptScored(ctx, n); err != nil {
			c.log.Error("attempt: result notification failed", err, map[string]interface{}{"attempt_id": n.AttemptID})
		}
	}()
}

// expire runs when an attempt's countdown reaches zero.
func (c *Controller) expire(attemptID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
	defer cancel()
	if _, err := c.ForceSubmit(ctx, attemptID); err != nil {
		c.log.Error("attempt: timed submission failed", err, map[string]interface{}{"attempt_id": attemptID})
	}
}

// clock is the time recorded on attempts, at the whole-second resolution the
// stores keep.
func (c *Controller) clock() time.Time {
	return c.now().UTC().Truncate(time.Second)
}

func (c *Controller) loadQuiz(ctx context.Context, quizID string) (quiz.QuizDefinition, error) {
	def, err := c.store.GetQuizWithQuestions(ctx, quizID)
	if errors.Is(err, quiz.ErrNotFound) {
		return quiz.QuizDefinition{}, &quiz.QuizUnavailableError{QuizID: quizID, Err: err}
	}
	return def, err
}

// View is an attempt as its learner (or a reviewer) sees it.
type View struct {
	Result  quiz.Result       `json:"result"`
	Quiz    *quiz.StudentQuiz `json:"quiz,omitempty"`
	Answers map[string]int    `json:"answers,omitempty"`
}

// Get returns the attempt with its questions and current answers while in
// progress, or its result once submitted. The caller checks access.
func (c *Controller) Get(ctx context.Context, attemptID string) (quiz.Attempt, View, error) {
	s, err := c.lookup(ctx, attemptID)
	if err != nil {
		return quiz.Attempt{}, View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{Result: quiz.BuildResult(s.rules, s.attempt)}
	if s.state != quiz.StatusSubmitted {
		sv := quiz.StudentView(s.rules, s.attempt.Questions, s.attempt.ID)
		v.Quiz = &sv
		v.Answers = s.answersCopy()
	}
	return s.attempt, v, nil
}

// Live reports how many attempts have an in-memory session.
func (c *Controller) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close stops every countdown and waits for pending notifications.
func (c *Controller) Close() {
	c.mu.Lock()
	live := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		live = append(live, s)
	}
	c.mu.Unlock()
	for _, s := range live {
		s.mu.Lock()
		s.stopTimer()
		s.mu.Unlock()
	}
	c.bg.Wait()
}
