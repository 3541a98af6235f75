package http

import (
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-school/internal/gradebook"
	"github.com/mind-engage/mindengage-school/internal/logger"
	"github.com/mind-engage/mindengage-school/internal/rbac"
)

// GET /gradebook?period=...&learner_id=...
// learner_id defaults to the caller and is ignored without gradebook:view-all.
func GradebookHandler(svc *gradebook.Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		learner := strings.TrimSpace(r.URL.Query().Get("learner_id"))
		if learner == "" || !rbac.Can(ctx, rbac.PermGradebookViewAll) {
			learner = rbac.SubjectFromContext(ctx)
		}
		rep, err := svc.Report(ctx, learner, strings.TrimSpace(r.URL.Query().Get("period")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
