package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-school/internal/logger"
	"github.com/mind-engage/mindengage-school/internal/quiz"
	"github.com/mind-engage/mindengage-school/internal/rbac"
)

type quizSummary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	AcademicPeriod string `json:"academic_period"`
	TimeLimitMin   *int   `json:"time_limit_min,omitempty"`
	MaxAttempts    *int   `json:"max_attempts,omitempty"`
	Version        int    `json:"version"`
	Questions      int    `json:"questions"`
}

// POST /quizzes
// Creates a quiz, or a new version of it when the id already exists. Only the
// quiz's author (or catalog:edit-any) may write a new version; archived ids
// are refused.
func CreateQuizHandler(store quiz.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var nq quiz.NewQuiz
		if err := decodeJSON(r, &nq); err != nil {
			badRequest(w, "bad json")
			return
		}
		if err := nq.Validate(); err != nil {
			writeError(w, log, err)
			return
		}
		def := nq.Definition(rbac.SubjectFromContext(ctx))
		status := http.StatusCreated
		if def.ID != "" {
			existing, err := store.GetQuizWithQuestions(ctx, def.ID)
			switch {
			case err == nil:
				status = http.StatusOK
				if rbac.Can(ctx, rbac.PermCatalogEditAny) {
					def.CreatedBy = existing.CreatedBy
				}
			case !errors.Is(err, quiz.ErrNotFound):
				writeError(w, log, err)
				return
			}
		}
		saved, err := store.PutQuiz(ctx, def)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, status, saved)
	}
}

// GET /quizzes?period=...&mine=1&limit=50&offset=0
func ListQuizzesHandler(store quiz.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := quiz.QuizFilter{
			AcademicPeriod: strings.TrimSpace(q.Get("period")),
			Limit:          parseIntDefault(q.Get("limit"), 50),
			Offset:         parseIntDefault(q.Get("offset"), 0),
		}
		if q.Get("mine") == "1" {
			f.CreatedBy = rbac.SubjectFromContext(r.Context())
		}
		list, err := store.ListQuizzes(r.Context(), f)
		if err != nil {
			writeError(w, log, err)
			return
		}
		out := make([]quizSummary, 0, len(list))
		for _, def := range list {
			out = append(out, quizSummary{
				ID:             def.ID,
				Title:          def.Title,
				AcademicPeriod: def.AcademicPeriod,
				TimeLimitMin:   def.TimeLimitMin,
				MaxAttempts:    def.MaxAttempts,
				Version:        def.Version,
				Questions:      len(def.Questions),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /quizzes/{quizID}
// The learner-facing view: no correct answers, no feedback. While the caller
// has an attempt open the view matches that attempt's layout; otherwise the
// questions come in authored order.
func GetQuizHandler(store quiz.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		def, err := store.GetQuizWithQuestions(ctx, chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		open, err := store.ListAttempts(ctx, quiz.AttemptFilter{
			QuizID:    def.ID,
			LearnerID: rbac.SubjectFromContext(ctx),
			Status:    quiz.StatusInProgress,
			Limit:     1,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		if len(open) > 0 {
			a := open[0]
			writeJSON(w, http.StatusOK, quiz.StudentView(def, a.Questions, a.ID))
			return
		}
		canonical := def
		canonical.ShuffleQuestions, canonical.ShuffleOptions = false, false
		writeJSON(w, http.StatusOK, quiz.StudentView(canonical, def.Questions, ""))
	}
}

// GET /quizzes/{quizID}/admin
func GetQuizAdminHandler(store quiz.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := store.GetQuizWithQuestions(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, def)
	}
}

// DELETE /quizzes/{quizID}
func ArchiveQuizHandler(store quiz.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.ArchiveQuiz(r.Context(), chi.URLParam(r, "quizID")); err != nil {
			writeError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
