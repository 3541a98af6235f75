package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-school/internal/db"
	"github.com/mind-engage/mindengage-school/internal/rbac"
)

func newUserStore(t *testing.T) *UserStore {
	t.Helper()
	d, err := db.Open(context.Background(), db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return NewUserStore(d)
}

func TestUserStoreCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	users := newUserStore(t)

	u, err := users.Create(ctx, "amani", "amani@example.com", rbac.RoleStudent, "pw123")
	require.NoError(t, err)

	got, err := users.Authenticate(ctx, "amani", "pw123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = users.Authenticate(ctx, "amani", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = users.Authenticate(ctx, "ghost", "pw123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = users.Create(ctx, "amani", "", rbac.RoleStudent, "x")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = users.Create(ctx, "bob", "", "janitor", "x")
	assert.ErrorIs(t, err, ErrInvalidRole)

	email, err := users.Email(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "amani@example.com", email)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	users := newUserStore(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("root"), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, users.EnsureAdmin(ctx, "admin", "", string(hash)))
	require.NoError(t, users.EnsureAdmin(ctx, "admin", "", string(hash)))

	u, err := users.Authenticate(ctx, "admin", "root")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, u.Role)
}

func TestLoginAndJWTMiddleware(t *testing.T) {
	ctx := context.Background()
	users := newUserStore(t)
	u, err := users.Create(ctx, "mwalimu", "", rbac.RoleTeacher, "secret")
	require.NoError(t, err)
	a := NewAuthService("test-secret", time.Hour)

	rec := httptest.NewRecorder()
	LoginHandler(a, users)(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"mwalimu","password":"secret"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body["access_token"])

	var gotSub, gotRole string
	protected := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = rbac.SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/quizzes", nil)
	req.Header.Set("Authorization", "Bearer "+body["access_token"])
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.ID, gotSub)
	assert.Equal(t, rbac.RoleTeacher, gotRole)

	rec = httptest.NewRecorder()
	LoginHandler(a, users)(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"mwalimu","password":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quizzes", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	a := NewAuthService("k1", time.Minute)
	tok, err := a.IssueJWT("u1", rbac.RoleStudent)
	require.NoError(t, err)

	_, err = NewAuthService("k2", time.Minute).Parse(tok)
	assert.Error(t, err)

	later := NewAuthService("k1", time.Minute)
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = later.Parse(tok)
	assert.Error(t, err)
}

func TestAttachRoleFromDB(t *testing.T) {
	ctx := context.Background()
	users := newUserStore(t)
	u, err := users.Create(ctx, "s", "", rbac.RoleStudent, "pw")
	require.NoError(t, err)

	var role string
	h := AttachRoleFromDB(users, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = rbac.RoleFromContext(r.Context())
	}))

	// token claims admin; the users table says student
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(rbac.WithRole(rbac.WithSubject(req.Context(), u.ID), rbac.RoleAdmin))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rbac.RoleStudent, role)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(rbac.WithRole(rbac.WithSubject(req.Context(), "unknown"), rbac.RoleAdmin))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
