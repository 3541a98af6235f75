package http

import (
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-school/internal/logger"
	syncx "github.com/mind-engage/mindengage-school/internal/sync"
)

// GET /events?after=0&limit=100
// Pages through the append-only event log, oldest first.
func EventsHandler(repo *syncx.EventRepo, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var after int64
		if s := q.Get("after"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v < 0 {
				badRequest(w, "after must be a non-negative sequence number")
				return
			}
			after = v
		}
		events, err := repo.Since(r.Context(), after, parseIntDefault(q.Get("limit"), 100))
		if err != nil {
			writeError(w, log, err)
			return
		}
		if events == nil {
			events = []syncx.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}
