package users

import (
	"errors"
	"time"
)

var (
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// GetCriteria selects a single user. Nil fields are ignored.
type GetCriteria struct {
	ID    *int64
	Email *string
}

type SignUpRequest struct {
	Name     string
	Email    string
	Password string
}

type SignInRequest struct {
	Email    string
	Password string
}
