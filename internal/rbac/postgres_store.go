package rbac

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

// Migrate creates the roles table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS roles (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			permissions JSONB NOT NULL DEFAULT '[]',
			system_role BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (organization_id, name)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate roles: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, r *Role) error {
	return CreateInTx(ctx, s.db, r)
}

// CreateInTx inserts a role through an explicit handle so the
// registration transaction can seed defaults atomically.
func CreateInTx(ctx context.Context, q storage.Querier, r *Role) error {
	perms, err := json.Marshal(permsOrEmpty(r.Permissions))
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err = q.ExecContext(ctx, `
		INSERT INTO roles (id, organization_id, name, description, permissions,
			system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.OrganizationID, r.Name, r.Description, perms,
		r.SystemRole, r.CreatedAt, r.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrRoleExists
	}
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orgID, id string) (*Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		selectRole+` WHERE organization_id = $1 AND id = $2`, orgID, id))
}

func (s *PostgresStore) GetByName(ctx context.Context, orgID, name string) (*Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		selectRole+` WHERE organization_id = $1 AND name = $2`, orgID, name))
}

func (s *PostgresStore) ListByNames(ctx context.Context, orgID string, names []string) ([]*Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		selectRole+` WHERE organization_id = $1 AND name = ANY($2)`,
		orgID, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list roles by name: %w", err)
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s *PostgresStore) List(ctx context.Context, orgID string) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx,
		selectRole+` WHERE organization_id = $1 ORDER BY system_role DESC, name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s *PostgresStore) Update(ctx context.Context, r *Role) error {
	perms, err := json.Marshal(permsOrEmpty(r.Permissions))
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE roles SET description = $3, permissions = $4, updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND NOT system_role`,
		r.OrganizationID, r.ID, r.Description, perms,
	)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return s.explainMiss(ctx, res, r.OrganizationID, r.ID)
}

func (s *PostgresStore) Delete(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM roles WHERE organization_id = $1 AND id = $2 AND NOT system_role`,
		orgID, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return s.explainMiss(ctx, res, orgID, id)
}

// explainMiss distinguishes "no such role" from "system role" when a
// guarded write touched zero rows.
func (s *PostgresStore) explainMiss(ctx context.Context, res sql.Result, orgID, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return err
	}
	return ErrSystemRole
}

const selectRole = `
	SELECT id, organization_id, name, description, permissions, system_role, created_at, updated_at
	FROM roles`

func scanRole(row *sql.Row) (*Role, error) {
	r := &Role{}
	var perms []byte
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Description, &perms,
		&r.SystemRole, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan role: %w", err)
	}
	if err := json.Unmarshal(perms, &r.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshal permissions: %w", err)
	}
	return r, nil
}

func collectRoles(rows *sql.Rows) ([]*Role, error) {
	var out []*Role
	for rows.Next() {
		r := &Role{}
		var perms []byte
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Description, &perms,
			&r.SystemRole, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if err := json.Unmarshal(perms, &r.Permissions); err != nil {
			return nil, fmt.Errorf("unmarshal permissions: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func permsOrEmpty(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}
