package account

import "context"

// Repository persists accounts. Create returns ErrEmailTaken when the email
// is already registered; the lookups return ErrNotFound.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}
