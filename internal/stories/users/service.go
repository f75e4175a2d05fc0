package users

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

// Service provides business logic for user accounts
type Service struct {
	storage  Storage
	hashCost int
}

// NewService creates a new user service
func NewService(storage Storage) *Service {
	return &Service{
		storage:  storage,
		hashCost: bcrypt.DefaultCost,
	}
}

// SignUp creates a user with a bcrypt-hashed password.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	email := normalizeEmail(req.Email)

	existing, err := s.storage.GetUser(ctx, GetCriteria{Email: &email})
	if err != nil {
		return nil, errors.Wrap(err, "get user by email")
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	created, err := s.storage.CreateUser(ctx, User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	return created, nil
}

// SignIn checks the credentials and returns the matching user.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*User, error) {
	user, err := s.storage.GetUser(ctx, GetCriteria{Email: lo.ToPtr(normalizeEmail(req.Email))})
	if err != nil {
		return nil, errors.Wrap(err, "get user by email")
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (*User, error) {
	return s.storage.GetUser(ctx, GetCriteria{ID: &userID})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
