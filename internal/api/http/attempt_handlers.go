package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-school/internal/attempt"
	"github.com/mind-engage/mindengage-school/internal/logger"
	"github.com/mind-engage/mindengage-school/internal/quiz"
	"github.com/mind-engage/mindengage-school/internal/rbac"
	"github.com/mind-engage/mindengage-school/internal/realtime"
)

// POST /quizzes/{quizID}/attempts
func StartAttemptHandler(ctrl *attempt.Controller, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := ctrl.Start(r.Context(), chi.URLParam(r, "quizID"), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, log, err)
			return
		}
		status := http.StatusCreated
		if st.Resumed {
			status = http.StatusOK
		}
		writeJSON(w, status, st)
	}
}

// PUT /attempts/{attemptID}/answers  { "question_id": "...", "option_index": 2 }
// option_index is the canonical index from the option list, not its position on screen.
func SelectAnswerHandler(ctrl *attempt.Controller, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID  string `json:"question_id"`
			OptionIndex *int   `json:"option_index"`
		}
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if strings.TrimSpace(req.QuestionID) == "" || req.OptionIndex == nil {
			badRequest(w, "question_id and option_index required")
			return
		}
		sel, err := ctrl.Select(r.Context(), rbac.SubjectFromContext(r.Context()),
			chi.URLParam(r, "attemptID"), req.QuestionID, *req.OptionIndex)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, sel)
	}
}

// POST /attempts/{attemptID}/submit
func SubmitAttemptHandler(ctrl *attempt.Controller, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := ctrl.Submit(r.Context(), rbac.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /attempts/{attemptID}
// Learners see their own attempts; attempt:view-all sees any.
func GetAttemptHandler(store quiz.Store, ctrl *attempt.Controller, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorizeAttempt(w, r, store, log) {
			return
		}
		_, view, err := ctrl.Get(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type attemptSummary struct {
	ID          string      `json:"id"`
	QuizID      string      `json:"quiz_id"`
	LearnerID   string      `json:"learner_id"`
	QuizVersion int         `json:"quiz_version"`
	Status      quiz.Status `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	Deadline    *time.Time  `json:"deadline,omitempty"`
	SubmittedAt *time.Time  `json:"submitted_at,omitempty"`
	Score       *float64    `json:"score,omitempty"`
}

// GET /attempts?quiz_id=...&learner_id=...&period=...&status=...&limit=50&offset=0
// Without attempt:view-all the learner_id filter is forced to the caller.
func ListAttemptsHandler(store quiz.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := quiz.AttemptFilter{
			QuizID:         strings.TrimSpace(q.Get("quiz_id")),
			LearnerID:      strings.TrimSpace(q.Get("learner_id")),
			AcademicPeriod: strings.TrimSpace(q.Get("period")),
			Status:         quiz.Status(strings.TrimSpace(q.Get("status"))),
			Limit:          parseIntDefault(q.Get("limit"), 50),
			Offset:         parseIntDefault(q.Get("offset"), 0),
		}
		switch f.Status {
		case "", quiz.StatusInProgress, quiz.StatusSubmitted:
		default:
			badRequest(w, "status must be in_progress or submitted")
			return
		}
		if !rbac.Can(r.Context(), rbac.PermAttemptViewAll) {
			f.LearnerID = rbac.SubjectFromContext(r.Context())
		}

		list, err := store.ListAttempts(r.Context(), f)
		if err != nil {
			writeError(w, log, err)
			return
		}
		out := make([]attemptSummary, 0, len(list))
		for _, a := range list {
			s := attemptSummary{
				ID:          a.ID,
				QuizID:      a.QuizID,
				LearnerID:   a.LearnerID,
				QuizVersion: a.QuizVersion,
				Status:      a.Status(),
				StartedAt:   a.StartedAt,
				Deadline:    a.Deadline,
				SubmittedAt: a.SubmittedAt,
			}
			if a.SubmittedAt != nil {
				score := quiz.Round1(a.Score)
				s.Score = &score
			}
			out = append(out, s)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /attempts/{attemptID}/ws
// Streams attempt events and a once-a-second countdown.
func AttemptWSHandler(store quiz.Store, ctrl *attempt.Controller, hub *realtime.Hub, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorizeAttempt(w, r, store, log) {
			return
		}
		a, _, err := ctrl.Get(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		hub.ServeWS(w, r, realtime.Stream{
			AttemptID: a.ID,
			Deadline:  a.Deadline,
			Submitted: a.Status() == quiz.StatusSubmitted,
		})
	}
}

// authorizeAttempt checks access against the stored row so that a refused
// request never touches the live session.
func authorizeAttempt(w http.ResponseWriter, r *http.Request, store quiz.Store, log logger.Logger) bool {
	a, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, log, err)
		return false
	}
	if !canSee(r, a) {
		writeError(w, log, quiz.ErrNotOwner)
		return false
	}
	return true
}

func canSee(r *http.Request, a quiz.Attempt) bool {
	ctx := r.Context()
	return a.LearnerID == rbac.SubjectFromContext(ctx) || rbac.Can(ctx, rbac.PermAttemptViewAll)
}
