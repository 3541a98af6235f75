package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-school/internal/quiz"
)

// Timer is the part of *time.Timer the controller uses.
type Timer interface {
	Stop() bool
}

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// session is the live state of one attempt. mu serialises every transition,
// including the scoring and persistence done at submission.
type session struct {
	mu      sync.Mutex
	attempt quiz.Attempt // carries the question snapshot
	rules   quiz.QuizDefinition
	state   quiz.Status
	answers map[string]int
	timer   Timer
}

func (s *session) answered() int { return len(s.answers) }

func (s *session) complete() bool {
	for _, q := range s.attempt.Questions {
		if _, ok := s.answers[q.ID]; !ok {
			return false
		}
	}
	return true
}

func (s *session) expired(now time.Time) bool {
	return s.attempt.Deadline != nil && !now.Before(*s.attempt.Deadline)
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *session) answersCopy() map[string]int {
	out := make(map[string]int, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// lookup returns the live session for id, loading it from the store when the
// process has no record of it. Submitted attempts come back as terminal
// sessions that are not kept in memory.
func (c *Controller) lookup(ctx context.Context, id string) (*session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[id]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	a, err := c.store.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	s := &session{attempt: a, state: a.Status(), answers: map[string]int{}}
	if def, err := c.store.GetQuizWithQuestions(ctx, a.QuizID); err == nil {
		s.rules = rulesOf(def)
	}
	if s.state == quiz.StatusSubmitted {
		for _, ar := range a.Answers {
			s.answers[ar.QuestionID] = ar.ChosenIndex
		}
		return s, nil
	}

	saved, err := c.drafts.Load(ctx, id)
	if err != nil {
		c.log.Warn("attempt: loading draft answers", err, map[string]interface{}{"attempt_id": id})
	}
	for qid, idx := range saved {
		s.answers[qid] = idx
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if live, ok := c.sessions[id]; ok {
		return live, nil
	}
	if a.Deadline != nil {
		remaining := a.Deadline.Sub(c.now())
		if remaining < 0 {
			remaining = 0
		}
		s.timer = c.afterFunc(remaining, func() { c.expire(id) })
	}
	c.sessions[id] = s
	return s, nil
}

func (c *Controller) forget(id string) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

// rulesOf keeps the quiz settings without the question list.
func rulesOf(def quiz.QuizDefinition) quiz.QuizDefinition {
	def.Questions = nil
	return def
}
