package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wellness/portal/internal/platform/auth"
)

// Registration carries a validated sign-up payload.
type Registration struct {
	FullName         string
	Email            string
	Password         string
	MobileNumber     string
	DOB              *time.Time
	Gender           string
	Address          string
	BloodGroup       string
	MaritalStatus    string
	EmergencyContact string
	Consent          bool
	Role             string
}

type Service struct {
	repo   Repository
	hasher *auth.PasswordHasher
	tokens *auth.TokenIssuer
	now    func() time.Time
}

func NewService(repo Repository, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer) *Service {
	return &Service{repo: repo, hasher: hasher, tokens: tokens, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. An already registered email is rejected
// before any hashing, leaving the stored account untouched.
func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	if r.DOB != nil && r.DOB.After(now) {
		return nil, invalid("dob", "dob must not be in the future")
	}
	if len(r.Password) > auth.MaxPasswordBytes {
		return nil, invalid("password", "password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	role := r.Role
	if role == "" {
		role = auth.RolePatient
	}
	if role != auth.RolePatient && role != auth.RoleProvider {
		return nil, invalid("role", "role must be one of: patient, provider")
	}

	email := normalizeEmail(r.Email)
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(r.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		FullName:         strings.TrimSpace(r.FullName),
		Email:            email,
		MobileNumber:     r.MobileNumber,
		DOB:              r.DOB,
		Gender:           r.Gender,
		Address:          r.Address,
		BloodGroup:       r.BloodGroup,
		MaritalStatus:    r.MaritalStatus,
		EmergencyContact: r.EmergencyContact,
		Consent:          r.Consent,
		PasswordHash:     hash,
		Role:             role,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the credentials and issues an access token. Unknown emails
// and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		s.hasher.CompareDummy(password)
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	token, err := s.tokens.Issue(u.ID, u.Email, []string{u.Role})
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}
