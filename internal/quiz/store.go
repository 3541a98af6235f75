package quiz

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu       sync.RWMutex
	quizzes  map[string]QuizDefinition
	attempts map[string]Attempt
	order    []string // attempt ids in creation order
	now      func() time.Time
}

// NewInMemoryStore keeps everything in process memory. Used by tests and offline demos.
func NewInMemoryStore() Store {
	return &memoryStore{
		quizzes:  map[string]QuizDefinition{},
		attempts: map[string]Attempt{},
		now:      time.Now,
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, q QuizDefinition) (QuizDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if prev, ok := m.quizzes[q.ID]; ok {
		if prev.ArchivedAt != nil {
			return QuizDefinition{}, ErrQuizArchived
		}
		if prev.CreatedBy != q.CreatedBy {
			return QuizDefinition{}, ErrNotAuthor
		}
		q.Version = prev.Version + 1
		q.CreatedAt = prev.CreatedAt
		q.ArchivedAt = nil
	} else {
		q.Version = 1
		q.CreatedAt = now
		q.ArchivedAt = nil
	}
	q.UpdatedAt = now
	q.Questions = cloneQuestions(q.Questions)
	for i := range q.Questions {
		if q.Questions[i].ID == "" {
			q.Questions[i].ID = uuid.NewString()
		}
	}
	SortQuestions(q.Questions)
	m.quizzes[q.ID] = q
	return cloneQuiz(q), nil
}

func (m *memoryStore) GetQuizWithQuestions(_ context.Context, id string) (QuizDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok || q.ArchivedAt != nil {
		return QuizDefinition{}, ErrNotFound
	}
	return cloneQuiz(q), nil
}

func (m *memoryStore) ArchiveQuiz(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok || q.ArchivedAt != nil {
		return ErrNotFound
	}
	now := m.now().UTC()
	q.ArchivedAt = &now
	m.quizzes[id] = q
	return nil
}

func (m *memoryStore) ListQuizzes(_ context.Context, f QuizFilter) ([]QuizDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]QuizDefinition, 0, len(m.quizzes))
	for _, q := range m.quizzes {
		if q.ArchivedAt != nil {
			continue
		}
		if f.AcademicPeriod != "" && q.AcademicPeriod != f.AcademicPeriod {
			continue
		}
		if f.CreatedBy != "" && q.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, cloneQuiz(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, na NewAttempt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[na.QuizID]; !ok {
		return "", ErrNotFound
	}
	id := uuid.NewString()
	m.attempts[id] = Attempt{
		ID:          id,
		QuizID:      na.QuizID,
		LearnerID:   na.LearnerID,
		QuizVersion: na.QuizVersion,
		StartedAt:   na.StartedAt.UTC(),
		Deadline:    na.Deadline,
		Questions:   cloneQuestions(na.Questions),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) UpdateAttempt(_ context.Context, id string, u AttemptUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return ErrAttemptNotFound
	}
	if a.SubmittedAt != nil {
		return ErrAlreadySubmitted
	}
	at := u.SubmittedAt.UTC()
	a.SubmittedAt = &at
	a.Score = u.Score
	a.Answers = append([]AnswerRecord(nil), u.Answers...)
	m.attempts[id] = a
	return nil
}

func (m *memoryStore) CountSubmittedAttempts(_ context.Context, quizID, learnerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.LearnerID == learnerID && a.SubmittedAt != nil {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, f AttemptFilter) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0)
	// newest first
	for i := len(m.order) - 1; i >= 0; i-- {
		a := m.attempts[m.order[i]]
		if f.QuizID != "" && a.QuizID != f.QuizID {
			continue
		}
		if f.LearnerID != "" && a.LearnerID != f.LearnerID {
			continue
		}
		if f.Status != "" && a.Status() != f.Status {
			continue
		}
		if f.AcademicPeriod != "" && m.quizzes[a.QuizID].AcademicPeriod != f.AcademicPeriod {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	return page(out, f.Limit, f.Offset), nil
}

func (m *memoryStore) ListOverdueAttempts(_ context.Context, now time.Time) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, id := range m.order {
		a := m.attempts[id]
		if a.SubmittedAt == nil && a.Deadline != nil && !a.Deadline.After(now) {
			out = append(out, cloneAttempt(a))
		}
	}
	return out, nil
}

func page[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return in[:0]
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func cloneQuestions(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

func cloneQuiz(q QuizDefinition) QuizDefinition {
	q.Questions = cloneQuestions(q.Questions)
	return q
}

func cloneAttempt(a Attempt) Attempt {
	a.Questions = cloneQuestions(a.Questions)
	a.Answers = append([]AnswerRecord(nil), a.Answers...)
	return a
}
