package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellness/portal/internal/platform/db"
)

const pgUniqueViolation = "23505"

type pgRepo struct{ pool *pgxpool.Pool }

func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

func (r *pgRepo) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `id, full_name, email, mobile_number, dob, gender, address, blood_group,
	marital_status, emergency_contact, consent, password, role, created_at, updated_at`

func (r *pgRepo) Create(ctx context.Context, u *User) error {
	id := uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (`+userCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		id, u.FullName, u.Email, nullable(u.MobileNumber), u.DOB, nullable(u.Gender),
		nullable(u.Address), nullable(u.BloodGroup), nullable(u.MaritalStatus),
		nullable(u.EmergencyContact), u.Consent, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id.String()
	return nil
}

func (r *pgRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanOne(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *pgRepo) GetByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.scanOne(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, uid))
}

func (r *pgRepo) scanOne(row pgx.Row) (*User, error) {
	var (
		u                                           User
		id                                          uuid.UUID
		mobile, gender, address, blood, marital, ec *string
	)
	err := row.Scan(&id, &u.FullName, &u.Email, &mobile, &u.DOB, &gender, &address, &blood,
		&marital, &ec, &u.Consent, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID = id.String()
	u.MobileNumber = deref(mobile)
	u.Gender = deref(gender)
	u.Address = deref(address)
	u.BloodGroup = deref(blood)
	u.MaritalStatus = deref(marital)
	u.EmergencyContact = deref(ec)
	return &u, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
