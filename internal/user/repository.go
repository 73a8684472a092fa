package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{
	"u.id", "u.email", "u.name", "u.email_verified", "u.image", "u.created_at", "u.updated_at",
}

const uniqueViolation = "23505"

// Repository reads and writes users, password credentials and external
// identities in PostgreSQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query, args, err := psq.Select(userColumns...).
		From("users u").
		Where(sq.Eq{"u.id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("user: build query: %w", err)
	}

	return r.scanOne(ctx, query, args, false)
}

// FindByEmail returns the user and, when one exists, its password hash.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	columns := append(append([]string{}, userColumns...), "COALESCE(c.password_hash, '')")

	query, args, err := psq.Select(columns...).
		From("users u").
		LeftJoin("credentials c ON c.user_id = u.id").
		Where(sq.Expr("LOWER(u.email) = LOWER(?)", email)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("user: build query: %w", err)
	}

	return r.scanOne(ctx, query, args, true)
}

// Create inserts a new user. Email uniqueness is case-insensitive.
func (r *Repository) Create(ctx context.Context, u User) (*User, error) {
	u.Email = strings.TrimSpace(u.Email)
	if u.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRecord)
	}

	if err := insertUser(u).RunWith(r.db).QueryRowContext(ctx).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("user: insert: %w", err)
	}

	return &u, nil
}

// CreateWithPassword inserts a user together with its password credential.
// Either both rows are committed or neither is.
func (r *Repository) CreateWithPassword(ctx context.Context, u User, hash, version string) (*User, error) {
	u.Email = strings.TrimSpace(u.Email)
	if u.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRecord)
	}
	if hash == "" {
		return nil, fmt.Errorf("%w: password hash is required", ErrInvalidRecord)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("user: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertUser(u).RunWith(tx).QueryRowContext(ctx).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("user: insert: %w", err)
	}

	_, err = psq.Insert("credentials").
		Columns("user_id", "password_hash", "hash_version").
		Values(u.ID, hash, version).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("user: insert credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("user: commit: %w", err)
	}
	return &u, nil
}

func insertUser(u User) sq.InsertBuilder {
	return psq.Insert("users").
		Columns("email", "name", "email_verified", "image").
		Values(u.Email, u.Name, u.EmailVerified, u.Image).
		Suffix("RETURNING id, created_at, updated_at")
}

// FindIdentity returns the user linked to an external provider subject.
func (r *Repository) FindIdentity(ctx context.Context, provider, providerUserID string) (string, error) {
	query, args, err := psq.Select("user_id").
		From("identities").
		Where(sq.Eq{"provider": provider, "provider_user_id": providerUserID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("user: build query: %w", err)
	}

	var userID string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("user: find identity: %w", err)
	}
	return userID, nil
}

// LinkIdentity maps an external provider subject to a user.
func (r *Repository) LinkIdentity(ctx context.Context, userID, provider, providerUserID string) error {
	query, args, err := psq.Insert("identities").
		Columns("user_id", "provider", "provider_user_id").
		Values(userID, provider, providerUserID).
		Suffix("ON CONFLICT (provider, provider_user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("user: build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("user: link identity: %w", err)
	}
	return nil
}

func (r *Repository) scanOne(ctx context.Context, query string, args []any, withPassword bool) (*User, error) {
	var u User
	dest := []any{&u.ID, &u.Email, &u.Name, &u.EmailVerified, &u.Image, &u.CreatedAt, &u.UpdatedAt}
	if withPassword {
		dest = append(dest, &u.PasswordHash)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user: query: %w", err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
