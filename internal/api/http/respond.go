package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	auth "github.com/mind-engage/mindengage-school/internal/auth/middleware"
	"github.com/mind-engage/mindengage-school/internal/gradebook"
	"github.com/mind-engage/mindengage-school/internal/logger"
	"github.com/mind-engage/mindengage-school/internal/quiz"
	"github.com/mind-engage/mindengage-school/internal/validate"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps domain errors to HTTP statuses. Anything unrecognised is a
// 500 and gets logged.
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	if fields := validate.FieldErrors(err); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: fields})
		return
	}

	var (
		qnf   *quiz.QuestionNotFoundError
		oor   *quiz.OptionOutOfRangeError
		limit *quiz.AttemptLimitExceededError
		gone  *quiz.QuizUnavailableError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &qnf), errors.As(err, &oor):
		status = http.StatusBadRequest
	case errors.Is(err, gradebook.ErrPeriodRequired), errors.Is(err, auth.ErrInvalidRole):
		status = http.StatusBadRequest
	case errors.Is(err, quiz.ErrIncompleteSubmission):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &limit), errors.Is(err, quiz.ErrNotOwner), errors.Is(err, quiz.ErrNotAuthor):
		status = http.StatusForbidden
	case errors.As(err, &gone), errors.Is(err, quiz.ErrNotFound), errors.Is(err, quiz.ErrAttemptNotFound):
		status = http.StatusNotFound
	case errors.Is(err, quiz.ErrAlreadySubmitted), errors.Is(err, quiz.ErrTimeExpired),
		errors.Is(err, quiz.ErrQuizArchived), errors.Is(err, auth.ErrUsernameTaken):
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("http: request failed", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
