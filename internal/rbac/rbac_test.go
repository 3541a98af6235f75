package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has(RoleStudent, PermAttemptSubmit))
	assert.False(t, c.Has(RoleStudent, PermQuizCreate))
	assert.False(t, c.Has(RoleStudent, PermAttemptViewAll))
	assert.True(t, c.Has(RoleTeacher, PermQuizArchive), "quiz:* prefix")
	assert.False(t, c.Has(RoleTeacher, PermAttemptStart))
	assert.True(t, c.Has(RoleAdmin, PermGradebookViewAll))
	assert.False(t, c.Has("guest", PermQuizView))
	assert.True(t, c.Any(RoleStudent, PermAttemptViewAll, PermAttemptViewOwn))
}

func TestRequireMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require(PermQuizCreate)(ok)

	cases := map[string]int{
		"":          http.StatusForbidden,
		RoleStudent: http.StatusForbidden,
		RoleTeacher: http.StatusNoContent,
		RoleAdmin:   http.StatusNoContent,
	}
	for role, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/quizzes", nil)
		if role != "" {
			req = req.WithContext(WithRole(req.Context(), role))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "role %q", role)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := WithSubject(WithRole(context.Background(), RoleStudent), "s1")
	assert.Equal(t, "s1", SubjectFromContext(ctx))
	assert.Equal(t, RoleStudent, RoleFromContext(ctx))
	assert.True(t, Can(ctx, PermAttemptStart))
	assert.Equal(t, "", SubjectFromContext(context.Background()))
}
