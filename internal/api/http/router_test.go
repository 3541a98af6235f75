package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-school/internal/attempt"
	auth "github.com/mind-engage/mindengage-school/internal/auth/middleware"
	"github.com/mind-engage/mindengage-school/internal/db"
	"github.com/mind-engage/mindengage-school/internal/gradebook"
	"github.com/mind-engage/mindengage-school/internal/quiz"
	"github.com/mind-engage/mindengage-school/internal/rbac"
	"github.com/mind-engage/mindengage-school/internal/realtime"
	syncx "github.com/mind-engage/mindengage-school/internal/sync"
)

type apiFixture struct {
	t      *testing.T
	store  quiz.Store
	deps   Deps
	router http.Handler
	tokens map[string]string // username -> bearer
	ids    map[string]string // username -> user id
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	d, err := db.Open(ctx, db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	users := auth.NewUserStore(d)
	store := quiz.NewSQLStore(d)
	hub := realtime.NewHub(nil)
	ctrl := attempt.NewController(store, attempt.WithPublisher(hub))
	t.Cleanup(ctrl.Close)
	authSvc := auth.NewAuthService("test-secret", time.Hour)

	f := &apiFixture{t: t, store: store, tokens: map[string]string{}, ids: map[string]string{}}
	for name, role := range map[string]string{
		"mwalimu": rbac.RoleTeacher,
		"nuru":    rbac.RoleTeacher,
		"amani":   rbac.RoleStudent,
		"baraka":  rbac.RoleStudent,
		"root":    rbac.RoleAdmin,
	} {
		u, err := users.Create(ctx, name, name+"@example.com", role, "pw")
		require.NoError(t, err)
		tok, err := authSvc.IssueJWT(u.ID, u.Role)
		require.NoError(t, err)
		f.tokens[name] = tok
		f.ids[name] = u.ID
	}

	f.deps = Deps{
		Auth:        authSvc,
		Users:       users,
		Store:       store,
		Controller:  ctrl,
		Gradebook:   gradebook.NewService(store),
		Hub:         hub,
		Events:      syncx.NewEventRepo(d),
		CORSOrigins: []string{"http://localhost:3000"},
	}
	f.router = NewRouter(f.deps)
	return f
}

func (f *apiFixture) do(user, method, path string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[user])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), rec.Body.String())
}

var fractionsQuiz = map[string]interface{}{
	"title":           "Fractions",
	"academic_period": "2025-T1",
	"questions": []map[string]interface{}{
		{"id": "q1", "prompt": "1/2 + 1/2", "options": []string{"0", "1"}, "correct_index": 1},
		{"id": "q2", "prompt": "1/4 + 1/4", "options": []string{"1/2", "1/8"}, "correct_index": 0},
	},
}

func (f *apiFixture) createQuiz() quiz.QuizDefinition {
	f.t.Helper()
	rec := f.do("mwalimu", http.MethodPost, "/quizzes", fractionsQuiz)
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	var def quiz.QuizDefinition
	decode(f.t, rec, &def)
	return def
}

func (f *apiFixture) start(user, quizID string) attempt.Started {
	f.t.Helper()
	rec := f.do(user, http.MethodPost, "/quizzes/"+quizID+"/attempts", nil)
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	var st attempt.Started
	decode(f.t, rec, &st)
	return st
}

func answer(qid string, idx int) map[string]interface{} {
	return map[string]interface{}{"question_id": qid, "option_index": idx}
}

func TestHealth(t *testing.T) {
	f := newAPI(t)
	assert.Equal(t, http.StatusOK, f.do("", http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, f.do("", http.MethodGet, "/readyz", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("", http.MethodGet, "/quizzes", nil).Code)
}

func TestQuizAuthoring(t *testing.T) {
	f := newAPI(t)

	assert.Equal(t, http.StatusForbidden, f.do("amani", http.MethodPost, "/quizzes", fractionsQuiz).Code)

	rec := f.do("mwalimu", http.MethodPost, "/quizzes", map[string]interface{}{
		"title":           " ",
		"academic_period": "2025-T1",
		"questions": []map[string]interface{}{
			{"prompt": "p", "options": []string{"only"}, "correct_index": 3},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Contains(t, body.Fields, "title")
	assert.Contains(t, body.Fields, "questions[0].options")

	def := f.createQuiz()
	assert.Equal(t, 1, def.Version)
	assert.Equal(t, f.ids["mwalimu"], def.CreatedBy)

	// learners get no answer key
	rec = f.do("amani", http.MethodGet, "/quizzes/"+def.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "correct_index")

	assert.Equal(t, http.StatusForbidden, f.do("amani", http.MethodGet, "/quizzes/"+def.ID+"/admin", nil).Code)
	rec = f.do("mwalimu", http.MethodGet, "/quizzes/"+def.ID+"/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "correct_index")

	rec = f.do("amani", http.MethodGet, "/quizzes?period=2025-T1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []quizSummary
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Questions)

	assert.Equal(t, http.StatusNoContent, f.do("mwalimu", http.MethodDelete, "/quizzes/"+def.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do("amani", http.MethodGet, "/quizzes/"+def.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do("amani", http.MethodPost, "/quizzes/"+def.ID+"/attempts", nil).Code)
}

func TestAttemptFlow(t *testing.T) {
	f := newAPI(t)
	def := f.createQuiz()
	st := f.start("amani", def.ID)
	id := st.Attempt.ID
	assert.Len(t, st.Quiz.Questions, 2)

	assert.Equal(t, http.StatusOK, f.do("amani", http.MethodPut, "/attempts/"+id+"/answers", answer("q1", 1)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("amani", http.MethodPut, "/attempts/"+id+"/answers", answer("q1", 7)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("amani", http.MethodPut, "/attempts/"+id+"/answers", answer("q9", 0)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("amani", http.MethodPut, "/attempts/"+id+"/answers",
		map[string]interface{}{"question_id": "q1"}).Code)
	assert.Equal(t, http.StatusForbidden, f.do("baraka", http.MethodPut, "/attempts/"+id+"/answers", answer("q1", 0)).Code)

	rec := f.do("amani", http.MethodGet, "/attempts/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view attempt.View
	decode(t, rec, &view)
	assert.Equal(t, quiz.StatusInProgress, view.Result.Status)
	assert.Equal(t, map[string]int{"q1": 1}, view.Answers)
	assert.Equal(t, http.StatusForbidden, f.do("baraka", http.MethodGet, "/attempts/"+id, nil).Code)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do("amani", http.MethodPost, "/attempts/"+id+"/submit", nil).Code)

	f.do("amani", http.MethodPut, "/attempts/"+id+"/answers", answer("q2", 1))
	rec = f.do("amani", http.MethodPost, "/attempts/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res quiz.Result
	decode(t, rec, &res)
	require.NotNil(t, res.Score)
	assert.Equal(t, 50.0, *res.Score)
	assert.Len(t, res.Details, 2)

	// resubmitting returns the same result
	rec = f.do("amani", http.MethodPost, "/attempts/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusConflict, f.do("amani", http.MethodPut, "/attempts/"+id+"/answers", answer("q2", 0)).Code)

	// teachers may read any attempt
	assert.Equal(t, http.StatusOK, f.do("mwalimu", http.MethodGet, "/attempts/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do("amani", http.MethodGet, "/attempts/nope", nil).Code)
}

func TestListAttemptsAndGradebook(t *testing.T) {
	f := newAPI(t)
	def := f.createQuiz()

	for user, picks := range map[string][2]int{"amani": {1, 0}, "baraka": {0, 0}} {
		st := f.start(user, def.ID)
		f.do(user, http.MethodPut, "/attempts/"+st.Attempt.ID+"/answers", answer("q1", picks[0]))
		f.do(user, http.MethodPut, "/attempts/"+st.Attempt.ID+"/answers", answer("q2", picks[1]))
		require.Equal(t, http.StatusOK, f.do(user, http.MethodPost, "/attempts/"+st.Attempt.ID+"/submit", nil).Code)
	}

	// learner_id is ignored for learners
	rec := f.do("amani", http.MethodGet, "/attempts?learner_id="+f.ids["baraka"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []attemptSummary
	decode(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, f.ids["amani"], mine[0].LearnerID)
	assert.Equal(t, 100.0, *mine[0].Score)

	rec = f.do("mwalimu", http.MethodGet, "/attempts?quiz_id="+def.ID+"&status=submitted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []attemptSummary
	decode(t, rec, &all)
	assert.Len(t, all, 2)
	assert.Equal(t, http.StatusBadRequest, f.do("mwalimu", http.MethodGet, "/attempts?status=lost", nil).Code)

	assert.Equal(t, http.StatusBadRequest, f.do("amani", http.MethodGet, "/gradebook", nil).Code)

	rec = f.do("mwalimu", http.MethodGet, "/gradebook?period=2025-T1&learner_id="+f.ids["baraka"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep gradebook.Report
	decode(t, rec, &rep)
	assert.Equal(t, f.ids["baraka"], rep.LearnerID)
	require.NotNil(t, rep.Overall)
	assert.Equal(t, 50.0, *rep.Overall)

	rec = f.do("amani", http.MethodGet, "/gradebook?period=2025-T1&learner_id="+f.ids["baraka"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &rep)
	assert.Equal(t, f.ids["amani"], rep.LearnerID)
	assert.Equal(t, 100.0, *rep.Overall)
}

func TestAttemptLimitOverHTTP(t *testing.T) {
	f := newAPI(t)
	payload := map[string]interface{}{}
	for k, v := range fractionsQuiz {
		payload[k] = v
	}
	payload["max_attempts"] = 1
	rec := f.do("mwalimu", http.MethodPost, "/quizzes", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var def quiz.QuizDefinition
	decode(t, rec, &def)

	st := f.start("amani", def.ID)
	f.do("amani", http.MethodPut, "/attempts/"+st.Attempt.ID+"/answers", answer("q1", 1))
	f.do("amani", http.MethodPut, "/attempts/"+st.Attempt.ID+"/answers", answer("q2", 0))
	require.Equal(t, http.StatusOK, f.do("amani", http.MethodPost, "/attempts/"+st.Attempt.ID+"/submit", nil).Code)

	assert.Equal(t, http.StatusForbidden, f.do("amani", http.MethodPost, "/quizzes/"+def.ID+"/attempts", nil).Code)
}

func TestCreateUser(t *testing.T) {
	f := newAPI(t)
	body := map[string]interface{}{"username": "zawadi", "password": "pw", "role": rbac.RoleStudent}
	assert.Equal(t, http.StatusForbidden, f.do("mwalimu", http.MethodPost, "/users", body).Code)
	assert.Equal(t, http.StatusCreated, f.do("root", http.MethodPost, "/users", body).Code)
	assert.Equal(t, http.StatusConflict, f.do("root", http.MethodPost, "/users", body).Code)
	body["username"], body["role"] = "x", "janitor"
	assert.Equal(t, http.StatusBadRequest, f.do("root", http.MethodPost, "/users", body).Code)
}

func TestQuizRewriteRules(t *testing.T) {
	f := newAPI(t)
	def := f.createQuiz()

	payload := map[string]interface{}{"id": def.ID}
	for k, v := range fractionsQuiz {
		payload[k] = v
	}
	payload["title"] = "Fractions, taken over"
	assert.Equal(t, http.StatusForbidden, f.do("nuru", http.MethodPost, "/quizzes", payload).Code)

	rec := f.do("mwalimu", http.MethodGet, "/quizzes/"+def.ID+"/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got quiz.QuizDefinition
	decode(t, rec, &got)
	assert.Equal(t, f.ids["mwalimu"], got.CreatedBy)
	assert.Equal(t, "Fractions", got.Title)
	assert.Equal(t, 1, got.Version)

	payload["title"] = "Fractions v2"
	rec = f.do("mwalimu", http.MethodPost, "/quizzes", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &got)
	assert.Equal(t, 2, got.Version)

	// admins may edit, authorship stays put
	payload["title"] = "Fractions v3"
	rec = f.do("root", http.MethodPost, "/quizzes", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &got)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, f.ids["mwalimu"], got.CreatedBy)

	require.Equal(t, http.StatusNoContent, f.do("mwalimu", http.MethodDelete, "/quizzes/"+def.ID, nil).Code)
	assert.Equal(t, http.StatusConflict, f.do("mwalimu", http.MethodPost, "/quizzes", payload).Code)
	assert.Equal(t, http.StatusNotFound, f.do("mwalimu", http.MethodGet, "/quizzes/"+def.ID+"/admin", nil).Code)
}

func TestStartResumesOverHTTP(t *testing.T) {
	f := newAPI(t)
	def := f.createQuiz()
	st := f.start("amani", def.ID)
	f.do("amani", http.MethodPut, "/attempts/"+st.Attempt.ID+"/answers", answer("q1", 1))

	rec := f.do("amani", http.MethodPost, "/quizzes/"+def.ID+"/attempts", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again attempt.Started
	decode(t, rec, &again)
	assert.True(t, again.Resumed)
	assert.Equal(t, st.Attempt.ID, again.Attempt.ID)

	rec = f.do("amani", http.MethodGet, "/attempts?quiz_id="+def.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []attemptSummary
	decode(t, rec, &mine)
	assert.Len(t, mine, 1)
}

func TestRefusedAttemptReadLeavesSessionAlone(t *testing.T) {
	f := newAPI(t)
	def := f.createQuiz()
	st := f.start("amani", def.ID)

	// a fresh controller over the same store, as after a restart
	fresh := attempt.NewController(f.store)
	t.Cleanup(fresh.Close)
	f.deps.Controller = fresh
	f.router = NewRouter(f.deps)

	assert.Equal(t, http.StatusForbidden, f.do("baraka", http.MethodGet, "/attempts/"+st.Attempt.ID, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do("baraka", http.MethodGet, "/attempts/"+st.Attempt.ID+"/ws", nil).Code)
	assert.Equal(t, 0, fresh.Live())

	assert.Equal(t, http.StatusOK, f.do("amani", http.MethodGet, "/attempts/"+st.Attempt.ID, nil).Code)
	assert.Equal(t, 1, fresh.Live())
}

func TestQuizViewFollowsAttemptLayout(t *testing.T) {
	f := newAPI(t)
	questions := make([]map[string]interface{}, 0, 6)
	for _, id := range []string{"q1", "q2", "q3", "q4", "q5", "q6"} {
		questions = append(questions, map[string]interface{}{
			"id": id, "prompt": id, "options": []string{"a", "b", "c", "d"}, "correct_index": 0,
		})
	}
	rec := f.do("mwalimu", http.MethodPost, "/quizzes", map[string]interface{}{
		"title":             "Shuffled",
		"academic_period":   "2025-T1",
		"shuffle_questions": true,
		"shuffle_options":   true,
		"questions":         questions,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var def quiz.QuizDefinition
	decode(t, rec, &def)

	// no attempt yet: authored order
	rec = f.do("amani", http.MethodGet, "/quizzes/"+def.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view quiz.StudentQuiz
	decode(t, rec, &view)
	require.Len(t, view.Questions, 6)
	for i, q := range view.Questions {
		assert.Equal(t, def.Questions[i].ID, q.ID)
		for j, o := range q.Options {
			assert.Equal(t, j, o.Index)
		}
	}

	st := f.start("amani", def.ID)
	rec = f.do("amani", http.MethodGet, "/quizzes/"+def.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = quiz.StudentQuiz{}
	decode(t, rec, &view)
	assert.Equal(t, st.Quiz, view)
}

func TestEventFeed(t *testing.T) {
	f := newAPI(t)
	def := f.createQuiz()
	st := f.start("amani", def.ID)
	f.do("amani", http.MethodPut, "/attempts/"+st.Attempt.ID+"/answers", answer("q1", 1))
	f.do("amani", http.MethodPut, "/attempts/"+st.Attempt.ID+"/answers", answer("q2", 0))
	require.Equal(t, http.StatusOK, f.do("amani", http.MethodPost, "/attempts/"+st.Attempt.ID+"/submit", nil).Code)

	assert.Equal(t, http.StatusForbidden, f.do("mwalimu", http.MethodGet, "/events", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("root", http.MethodGet, "/events?after=-1", nil).Code)

	rec := f.do("root", http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var events []syncx.Event
	decode(t, rec, &events)
	require.Len(t, events, 1)
	assert.Equal(t, syncx.EventAttemptSubmitted, events[0].Type)
	assert.Equal(t, st.Attempt.ID, events[0].Key)

	rec = f.do("root", http.MethodGet, "/events?after="+strconv.FormatInt(events[0].Seq, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
