package account

import (
	"errors"
	"fmt"
	"time"
)

// User is a portal account. PasswordHash never leaves the package except
// through the repositories.
type User struct {
	ID               string
	FullName         string
	Email            string
	MobileNumber     string
	DOB              *time.Time
	Gender           string
	Address          string
	BloodGroup       string
	MaritalStatus    string
	EmergencyContact string
	Consent          bool
	PasswordHash     string
	Role             string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PublicUser is the projection returned by the auth endpoints.
type PublicUser struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, FullName: u.FullName, Email: u.Email, Role: u.Role}
}

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrValidation         = errors.New("validation failed")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
