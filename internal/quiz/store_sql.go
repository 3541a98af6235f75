package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-school/internal/db"
	syncx "github.com/mind-engage/mindengage-school/internal/sync"
)

type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLStore(d *sqlx.DB) *SQLStore {
	return &SQLStore{db: d, now: time.Now}
}

const quizColumns = `id, title, academic_period, time_limit_min, shuffle_questions, shuffle_options,
	max_attempts, min_passing_score, feedback_mode, version, created_by, created_at, updated_at, archived_at`

type quizRow struct {
	ID               string          `db:"id"`
	Title            string          `db:"title"`
	AcademicPeriod   string          `db:"academic_period"`
	TimeLimitMin     sql.NullInt64   `db:"time_limit_min"`
	ShuffleQuestions bool            `db:"shuffle_questions"`
	ShuffleOptions   bool            `db:"shuffle_options"`
	MaxAttempts      sql.NullInt64   `db:"max_attempts"`
	MinPassingScore  sql.NullFloat64 `db:"min_passing_score"`
	FeedbackMode     string          `db:"feedback_mode"`
	Version          int             `db:"version"`
	CreatedBy        string          `db:"created_by"`
	CreatedAt        int64           `db:"created_at"`
	UpdatedAt        int64           `db:"updated_at"`
	ArchivedAt       sql.NullInt64   `db:"archived_at"`
}

func (r quizRow) definition() QuizDefinition {
	q := QuizDefinition{
		ID:               r.ID,
		Title:            r.Title,
		AcademicPeriod:   r.AcademicPeriod,
		ShuffleQuestions: r.ShuffleQuestions,
		ShuffleOptions:   r.ShuffleOptions,
		FeedbackMode:     FeedbackMode(r.FeedbackMode),
		Version:          r.Version,
		CreatedBy:        r.CreatedBy,
		CreatedAt:        time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:        time.Unix(r.UpdatedAt, 0).UTC(),
		ArchivedAt:       unixPtr(r.ArchivedAt),
	}
	if r.TimeLimitMin.Valid {
		v := int(r.TimeLimitMin.Int64)
		q.TimeLimitMin = &v
	}
	if r.MaxAttempts.Valid {
		v := int(r.MaxAttempts.Int64)
		q.MaxAttempts = &v
	}
	if r.MinPassingScore.Valid {
		v := r.MinPassingScore.Float64
		q.MinPassingScore = &v
	}
	return q
}

type questionRow struct {
	ID           string  `db:"id"`
	QuizID       string  `db:"quiz_id"`
	Position     int     `db:"position"`
	Seq          int     `db:"seq"`
	Prompt       string  `db:"prompt"`
	OptionsJSON  string  `db:"options_json"`
	CorrectIndex int     `db:"correct_index"`
	Points       float64 `db:"points"`
	Feedback     string  `db:"feedback"`
}

func (r questionRow) question() (Question, error) {
	q := Question{
		ID:           r.ID,
		Prompt:       r.Prompt,
		CorrectIndex: r.CorrectIndex,
		Points:       r.Points,
		Feedback:     r.Feedback,
		Order:        r.Position,
	}
	if err := json.Unmarshal([]byte(r.OptionsJSON), &q.Options); err != nil {
		return Question{}, errors.Wrapf(err, "quiz: decode options of question %s", r.ID)
	}
	return q, nil
}

type attemptRow struct {
	ID            string        `db:"id"`
	QuizID        string        `db:"quiz_id"`
	LearnerID     string        `db:"learner_id"`
	QuizVersion   int           `db:"quiz_version"`
	QuestionsJSON string        `db:"questions_json"`
	StartedAt     int64         `db:"started_at"`
	Deadline      sql.NullInt64 `db:"deadline"`
	SubmittedAt   sql.NullInt64 `db:"submitted_at"`
	Score         float64       `db:"score"`
	AnswersJSON   string        `db:"answers_json"`
}

const attemptColumns = `a.id, a.quiz_id, a.learner_id, a.quiz_version, a.questions_json, a.started_at,
	a.deadline, a.submitted_at, a.score, a.answers_json`

func (r attemptRow) attempt() (Attempt, error) {
	a := Attempt{
		ID:          r.ID,
		QuizID:      r.QuizID,
		LearnerID:   r.LearnerID,
		QuizVersion: r.QuizVersion,
		StartedAt:   time.Unix(r.StartedAt, 0).UTC(),
		Deadline:    unixPtr(r.Deadline),
		SubmittedAt: unixPtr(r.SubmittedAt),
		Score:       r.Score,
	}
	if err := json.Unmarshal([]byte(r.QuestionsJSON), &a.Questions); err != nil {
		return Attempt{}, errors.Wrapf(err, "quiz: decode snapshot of attempt %s", r.ID)
	}
	if r.AnswersJSON != "" {
		if err := json.Unmarshal([]byte(r.AnswersJSON), &a.Answers); err != nil {
			return Attempt{}, errors.Wrapf(err, "quiz: decode answers of attempt %s", r.ID)
		}
	}
	return a, nil
}

func (s *SQLStore) PutQuiz(ctx context.Context, q QuizDefinition) (QuizDefinition, error) {
	now := s.now().UTC().Truncate(time.Second)
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.Questions = cloneQuestions(q.Questions)
	for i := range q.Questions {
		if q.Questions[i].ID == "" {
			q.Questions[i].ID = uuid.NewString()
		}
	}
	SortQuestions(q.Questions)

	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var prev struct {
			Version    int           `db:"version"`
			CreatedBy  string        `db:"created_by"`
			CreatedAt  int64         `db:"created_at"`
			ArchivedAt sql.NullInt64 `db:"archived_at"`
		}
		err := tx.GetContext(ctx, &prev, tx.Rebind(
			`SELECT version, created_by, created_at, archived_at FROM quizzes WHERE id=?`), q.ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			q.Version = 1
			q.CreatedAt = now
			q.UpdatedAt = now
			q.ArchivedAt = nil
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO quizzes (`+quizColumns+`)
				VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
				q.ID, q.Title, q.AcademicPeriod, nullInt(q.TimeLimitMin), q.ShuffleQuestions, q.ShuffleOptions,
				nullInt(q.MaxAttempts), nullFloat(q.MinPassingScore), string(q.FeedbackMode), q.Version, q.CreatedBy,
				now.Unix(), now.Unix(), sql.NullInt64{})
			if err != nil {
				return errors.Wrap(err, "quiz: insert")
			}
		case err != nil:
			return errors.Wrap(err, "quiz: load version")
		case prev.ArchivedAt.Valid:
			return ErrQuizArchived
		case prev.CreatedBy != q.CreatedBy:
			return ErrNotAuthor
		default:
			q.Version = prev.Version + 1
			q.CreatedAt = time.Unix(prev.CreatedAt, 0).UTC()
			q.UpdatedAt = now
			q.ArchivedAt = nil
			_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE quizzes SET title=?, academic_period=?, time_limit_min=?,
				shuffle_questions=?, shuffle_options=?, max_attempts=?, min_passing_score=?, feedback_mode=?,
				version=?, updated_at=? WHERE id=?`),
				q.Title, q.AcademicPeriod, nullInt(q.TimeLimitMin), q.ShuffleQuestions, q.ShuffleOptions,
				nullInt(q.MaxAttempts), nullFloat(q.MinPassingScore), string(q.FeedbackMode), q.Version,
				now.Unix(), q.ID)
			if err != nil {
				return errors.Wrap(err, "quiz: update")
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM questions WHERE quiz_id=?`), q.ID); err != nil {
				return errors.Wrap(err, "quiz: clear questions")
			}
		}

		for i, qq := range q.Questions {
			opts, err := json.Marshal(qq.Options)
			if err != nil {
				return errors.Wrap(err, "quiz: encode options")
			}
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO questions
				(id, quiz_id, position, seq, prompt, options_json, correct_index, points, feedback)
				VALUES (?,?,?,?,?,?,?,?,?)`),
				qq.ID, q.ID, qq.Order, i, qq.Prompt, string(opts), qq.CorrectIndex, qq.Points, qq.Feedback)
			if err != nil {
				return errors.Wrapf(err, "quiz: insert question %s", qq.ID)
			}
		}
		return nil
	})
	if err != nil {
		return QuizDefinition{}, err
	}
	return q, nil
}

func (s *SQLStore) GetQuizWithQuestions(ctx context.Context, id string) (QuizDefinition, error) {
	var row quizRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+quizColumns+` FROM quizzes WHERE id=? AND archived_at IS NULL`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return QuizDefinition{}, ErrNotFound
	}
	if err != nil {
		return QuizDefinition{}, errors.Wrap(err, "quiz: get")
	}
	qs, err := s.loadQuestions(ctx, []string{id})
	if err != nil {
		return QuizDefinition{}, err
	}
	q := row.definition()
	q.Questions = qs[id]
	return q, nil
}

// loadQuestions returns questions keyed by quiz id, each slice in display order.
func (s *SQLStore) loadQuestions(ctx context.Context, quizIDs []string) (map[string][]Question, error) {
	out := make(map[string][]Question, len(quizIDs))
	if len(quizIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT id, quiz_id, position, seq, prompt, options_json, correct_index, points, feedback
		FROM questions WHERE quiz_id IN (?) ORDER BY quiz_id, position, seq`, quizIDs)
	if err != nil {
		return nil, errors.Wrap(err, "quiz: build questions query")
	}
	var rows []questionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "quiz: load questions")
	}
	for _, r := range rows {
		q, err := r.question()
		if err != nil {
			return nil, err
		}
		out[r.QuizID] = append(out[r.QuizID], q)
	}
	return out, nil
}

func (s *SQLStore) ArchiveQuiz(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE quizzes SET archived_at=? WHERE id=? AND archived_at IS NULL`),
		s.now().UTC().Unix(), id)
	if err != nil {
		return errors.Wrap(err, "quiz: archive")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "quiz: archive")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListQuizzes(ctx context.Context, f QuizFilter) ([]QuizDefinition, error) {
	where := []string{"archived_at IS NULL"}
	var args []interface{}
	if f.AcademicPeriod != "" {
		where = append(where, "academic_period=?")
		args = append(args, f.AcademicPeriod)
	}
	if f.CreatedBy != "" {
		where = append(where, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	limit, offset := bounds(f.Limit, f.Offset)
	args = append(args, limit, offset)

	var rows []quizRow
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "quiz: list")
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	qs, err := s.loadQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]QuizDefinition, 0, len(rows))
	for _, r := range rows {
		q := r.definition()
		q.Questions = qs[r.ID]
		out = append(out, q)
	}
	return out, nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, na NewAttempt) (string, error) {
	var exists int
	err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT 1 FROM quizzes WHERE id=?`), na.QuizID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "attempt: check quiz")
	}
	snap, err := json.Marshal(na.Questions)
	if err != nil {
		return "", errors.Wrap(err, "attempt: encode snapshot")
	}
	var deadline sql.NullInt64
	if na.Deadline != nil {
		deadline = sql.NullInt64{Int64: na.Deadline.Unix(), Valid: true}
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO attempts
		(id, quiz_id, learner_id, quiz_version, questions_json, started_at, deadline, submitted_at, score, answers_json)
		VALUES (?,?,?,?,?,?,?,NULL,0,'[]')`),
		id, na.QuizID, na.LearnerID, na.QuizVersion, string(snap), na.StartedAt.Unix(), deadline)
	if err != nil {
		return "", errors.Wrap(err, "attempt: insert")
	}
	return id, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	var row attemptRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+attemptColumns+` FROM attempts a WHERE a.id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, errors.Wrap(err, "attempt: get")
	}
	return row.attempt()
}

// UpdateAttempt records the submission and its AttemptSubmitted event in one transaction.
func (s *SQLStore) UpdateAttempt(ctx context.Context, id string, u AttemptUpdate) error {
	answers, err := json.Marshal(u.Answers)
	if err != nil {
		return errors.Wrap(err, "attempt: encode answers")
	}
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var cur struct {
			QuizID      string        `db:"quiz_id"`
			LearnerID   string        `db:"learner_id"`
			SubmittedAt sql.NullInt64 `db:"submitted_at"`
		}
		err := tx.GetContext(ctx, &cur, tx.Rebind(`SELECT quiz_id, learner_id, submitted_at FROM attempts WHERE id=?`), id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAttemptNotFound
		}
		if err != nil {
			return errors.Wrap(err, "attempt: load for update")
		}
		if cur.SubmittedAt.Valid {
			return ErrAlreadySubmitted
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE attempts SET submitted_at=?, score=?, answers_json=?
			WHERE id=? AND submitted_at IS NULL`),
			u.SubmittedAt.Unix(), u.Score, string(answers), id)
		if err != nil {
			return errors.Wrap(err, "attempt: update")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrAlreadySubmitted
		}

		ev, err := syncx.NewEvent(syncx.EventAttemptSubmitted, id, map[string]interface{}{
			"attempt_id":   id,
			"quiz_id":      cur.QuizID,
			"learner_id":   cur.LearnerID,
			"score":        u.Score,
			"submitted_at": u.SubmittedAt.Unix(),
		})
		if err != nil {
			return err
		}
		return syncx.Append(ctx, tx, ev)
	})
}

func (s *SQLStore) CountSubmittedAttempts(ctx context.Context, quizID, learnerID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM attempts WHERE quiz_id=? AND learner_id=? AND submitted_at IS NOT NULL`),
		quizID, learnerID)
	if err != nil {
		return 0, errors.Wrap(err, "attempt: count submitted")
	}
	return n, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error) {
	var where []string
	var args []interface{}
	if f.QuizID != "" {
		where = append(where, "a.quiz_id=?")
		args = append(args, f.QuizID)
	}
	if f.LearnerID != "" {
		where = append(where, "a.learner_id=?")
		args = append(args, f.LearnerID)
	}
	if f.AcademicPeriod != "" {
		where = append(where, "q.academic_period=?")
		args = append(args, f.AcademicPeriod)
	}
	switch f.Status {
	case StatusSubmitted:
		where = append(where, "a.submitted_at IS NOT NULL")
	case StatusInProgress:
		where = append(where, "a.submitted_at IS NULL")
	}
	query := `SELECT ` + attemptColumns + ` FROM attempts a JOIN quizzes q ON q.id = a.quiz_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY a.started_at DESC, a.id LIMIT ? OFFSET ?`
	limit, offset := bounds(f.Limit, f.Offset)
	args = append(args, limit, offset)

	var rows []attemptRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "attempt: list")
	}
	return attemptsFromRows(rows)
}

func (s *SQLStore) ListOverdueAttempts(ctx context.Context, now time.Time) ([]Attempt, error) {
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+attemptColumns+` FROM attempts a
		WHERE a.submitted_at IS NULL AND a.deadline IS NOT NULL AND a.deadline <= ?
		ORDER BY a.deadline`), now.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "attempt: list overdue")
	}
	return attemptsFromRows(rows)
}

func attemptsFromRows(rows []attemptRow) ([]Attempt, error) {
	out := make([]Attempt, 0, len(rows))
	for _, r := range rows {
		a, err := r.attempt()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func bounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
