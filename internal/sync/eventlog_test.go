package syncx_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-school/internal/db"
	"github.com/mind-engage/mindengage-school/internal/quiz"
	syncx "github.com/mind-engage/mindengage-school/internal/sync"
)

func TestSubmissionAppendsEvent(t *testing.T) {
	ctx := context.Background()
	d, err := db.Open(ctx, db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer d.Close()

	store := quiz.NewSQLStore(d)
	def, err := store.PutQuiz(ctx, quiz.QuizDefinition{
		Title:          "Events",
		AcademicPeriod: "2025-T1",
		FeedbackMode:   quiz.FeedbackAtEnd,
		Questions:      []quiz.Question{{ID: "q1", Options: []string{"a", "b"}, Points: 1}},
	})
	require.NoError(t, err)
	id, err := store.CreateAttempt(ctx, quiz.NewAttempt{QuizID: def.ID, LearnerID: "s1", StartedAt: time.Now()})
	require.NoError(t, err)

	repo := syncx.NewEventRepo(d)
	events, err := repo.Since(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, store.UpdateAttempt(ctx, id, quiz.AttemptUpdate{Score: 100, SubmittedAt: time.Now()}))
	// a rejected second write leaves no event behind
	assert.ErrorIs(t, store.UpdateAttempt(ctx, id, quiz.AttemptUpdate{Score: 0, SubmittedAt: time.Now()}), quiz.ErrAlreadySubmitted)

	events, err = repo.Since(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, syncx.EventAttemptSubmitted, events[0].Type)
	assert.Equal(t, id, events[0].Key)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(events[0].DataJSON), &payload))
	assert.Equal(t, "s1", payload["learner_id"])
	assert.Equal(t, 100.0, payload["score"])

	ev, err := syncx.NewEvent("Custom", "k", map[string]int{"n": 1})
	require.NoError(t, err)
	require.NoError(t, syncx.Append(ctx, d, ev))
	events, err = repo.Since(ctx, events[0].Seq, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Custom", events[0].Type)
	assert.Equal(t, "local", events[0].SiteID)
}
