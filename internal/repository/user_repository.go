package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-attempt/internal/model"
)

var ErrDuplicatePhone = errors.New("user with this phone already exists")

// pgUniqueViolation is the Postgres SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// UserRepository handles user data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, last_name, first_name, middle_name, phone, faculty, password_hash, is_admin, created_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.LastName, &u.FirstName, &u.MiddleName, &u.Phone, &u.Faculty,
		&u.PasswordHash, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByPhone retrieves a user by their unique phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

// Create inserts a new user and fills in ID and CreatedAt.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (last_name, first_name, middle_name, phone, faculty, password_hash, is_admin)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		u.LastName, u.FirstName, u.MiddleName, u.Phone, u.Faculty, u.PasswordHash, u.IsAdmin,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicatePhone
		}
		return err
	}
	return nil
}

// SetAdmin grants or revokes admin rights for the user with the given phone.
// It returns pgx.ErrNoRows when no such user exists.
func (r *UserRepository) SetAdmin(ctx context.Context, phone string, isAdmin bool) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET is_admin = $2 WHERE phone = $1 RETURNING `+userColumns,
		phone, isAdmin))
}
