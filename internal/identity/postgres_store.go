package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mediplex/mediplex/internal/storage"
)

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			display_id TEXT NOT NULL DEFAULT '',
			roles JSONB NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_users_org ON users(organization_id);
		CREATE TABLE IF NOT EXISTS verification_tokens (
			token_hash TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	return CreateInTx(ctx, s.db, u)
}

// CreateInTx inserts a user through an explicit handle so the
// registration transaction can reuse the same statement.
func CreateInTx(ctx context.Context, q storage.Querier, u *User) error {
	roles, err := json.Marshal(rolesOrEmpty(u.Roles))
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err = q.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, email, password_hash, first_name,
			last_name, display_id, roles, status, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.OrganizationID, u.Email, u.PasswordHash, u.FirstName,
		u.LastName, u.DisplayID, roles, u.Status, u.EmailVerified, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// EmailExistsInTx reports whether an email is taken, through an
// explicit handle.
func EmailExistsInTx(ctx context.Context, q storage.Querier, email string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id))
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE email = $1`, email))
}

func (s *PostgresStore) CountByOrganization(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE organization_id = $1`, orgID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email_verified = TRUE, status = $2, updated_at = now()
		WHERE id = $1`, id, UserActive)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveVerificationToken(ctx context.Context, t *VerificationToken) error {
	return SaveVerificationTokenInTx(ctx, s.db, t)
}

// SaveVerificationTokenInTx persists a hashed verification token through
// an explicit handle.
func SaveVerificationTokenInTx(ctx context.Context, q storage.Querier, t *VerificationToken) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO verification_tokens (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`,
		t.TokenHash, t.UserID, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsumeVerificationToken(ctx context.Context, hash string) (string, error) {
	var (
		userID    string
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM verification_tokens WHERE token_hash = $1
		RETURNING user_id, expires_at`, hash,
	).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume verification token: %w", err)
	}
	if time.Now().UTC().After(expiresAt) {
		return "", ErrTokenExpired
	}
	return userID, nil
}

const selectUser = `
	SELECT id, organization_id, email, password_hash, first_name,
		last_name, display_id, roles, status, email_verified, created_at, updated_at
	FROM users`

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var roles []byte
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.FirstName,
		&u.LastName, &u.DisplayID, &roles, &u.Status, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &u.Roles); err != nil {
			return nil, fmt.Errorf("unmarshal roles: %w", err)
		}
	}
	return u, nil
}

func rolesOrEmpty(r []string) []string {
	if r == nil {
		return []string{}
	}
	return r
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
