// Package identity owns user records and credential verification.
package identity

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bluele/gcache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"secure-file-share/internal/apperr"
)

// User is an identity. Users are never deleted or renamed, so a User value
// read once stays valid for the life of the process.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"-"`
}

// Store persists users. CreateUser reports a taken name as apperr Conflict;
// lookups of unknown users report apperr NotFound.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	Credentials(ctx context.Context, username string) (User, string, error)
	UserByID(ctx context.Context, id int64) (User, error)
	UserByName(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

const (
	defaultCacheSize = 1024
	maxPasswordBytes = 72 // bcrypt ignores anything past this
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Service struct {
	store Store
	users gcache.Cache
	cost  int
	// dummyHash is compared against when a username is unknown so that
	// failed logins take the same time either way.
	dummyHash []byte
}

type Option func(*Service)

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithCacheSize bounds the id -> User cache.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		s.users = gcache.New(n).LRU().Build()
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		users: gcache.New(defaultCacheSize).LRU().Build(),
		cost:  12,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	return s
}

func validateUsername(username string) error {
	if len(username) < 3 {
		return apperr.InvalidArgument("Username must be at least 3 characters long")
	}
	if len(username) > 50 {
		return apperr.InvalidArgument("Username must be less than 50 characters")
	}
	if !usernamePattern.MatchString(username) {
		return apperr.InvalidArgument("Username can only contain letters, numbers, and underscores")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) > maxPasswordBytes {
		return apperr.InvalidArgument("Password must be at most 72 bytes")
	}
	return nil
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, apperr.InvalidArgument("Username and password are required")
	}
	if err := validateUsername(username); err != nil {
		return User{}, err
	}
	if err := validatePassword(password); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, apperr.StorageFailure("failed hashing password").WithCause(err)
	}

	u, err := s.store.CreateUser(ctx, username, string(hash))
	if err != nil {
		return User{}, err
	}
	s.users.Set(u.ID, u)
	log.WithFields(log.Fields{"user_id": u.ID, "username": u.Username}).Info("user registered")
	return u, nil
}

// Authenticate verifies a username/password pair. Any mismatch, including
// an unknown username, is reported as apperr Unauthorized.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, hash, err := s.store.Credentials(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return User{}, apperr.Unauthorized("Invalid username or password")
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return User{}, apperr.Unauthorized("Invalid username or password")
	}
	s.users.Set(u.ID, u)
	return u, nil
}

// UserByID resolves a session subject to a user, served from cache when possible.
func (s *Service) UserByID(ctx context.Context, id int64) (User, error) {
	if v, err := s.users.Get(id); err == nil {
		return v.(User), nil
	}
	u, err := s.store.UserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	s.users.Set(id, u)
	return u, nil
}

func (s *Service) UserByName(ctx context.Context, username string) (User, error) {
	return s.store.UserByName(ctx, strings.TrimSpace(username))
}

// ListOthers returns every user except the one with id self.
func (s *Service) ListOthers(ctx context.Context, self int64) ([]User, error) {
	all, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	others := make([]User, 0, len(all))
	for _, u := range all {
		if u.ID != self {
			others = append(others, u)
		}
	}
	return others, nil
}
