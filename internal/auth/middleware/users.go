package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-school/internal/rbac"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidRole        = errors.New("unknown role")
)

type User struct {
	ID           string `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	Email        string `db:"email" json:"email,omitempty"`
	Role         string `db:"role" json:"role"`
	PasswordHash string `db:"password_hash" json:"-"`
	CreatedAt    int64  `db:"created_at" json:"created_at"`
}

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore { return &UserStore{db: db} }

const userColumns = `id, username, email, role, password_hash, created_at`

func (s *UserStore) get(ctx context.Context, where string, arg interface{}) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, errors.Wrap(err, "users: get")
	}
	return u, nil
}

func (s *UserStore) ByID(ctx context.Context, id string) (User, error) {
	return s.get(ctx, "id=?", id)
}

func (s *UserStore) ByUsername(ctx context.Context, username string) (User, error) {
	return s.get(ctx, "username=?", username)
}

// Email returns the address notifications for userID go to.
func (s *UserStore) Email(ctx context.Context, userID string) (string, error) {
	u, err := s.ByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// Authenticate checks a username and password pair.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.ByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Create adds a user with a bcrypt hash of password.
func (s *UserStore) Create(ctx context.Context, username, email, role, password string) (User, error) {
	if !rbac.ValidRole(role) {
		return User{}, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, errors.Wrap(err, "users: hash password")
	}
	u := User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().Unix(),
	}
	if err := s.insert(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *UserStore) insert(ctx context.Context, u User) error {
	if _, err := s.ByUsername(ctx, u.Username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (:id, :username, :email, :role, :password_hash, :created_at)`, u)
	return errors.Wrap(err, "users: insert")
}

// EnsureAdmin creates the bootstrap admin from a pre-computed bcrypt hash if
// no user with that name exists yet.
func (s *UserStore) EnsureAdmin(ctx context.Context, username, email, passHash string) error {
	_, err := s.ByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	return s.insert(ctx, User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Role:         rbac.RoleAdmin,
		PasswordHash: passHash,
		CreatedAt:    time.Now().Unix(),
	})
}
