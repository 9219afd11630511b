package org

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

// Migrate creates the organizations tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS organizations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			settings JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS onboarding_progress (
			organization_id TEXT PRIMARY KEY REFERENCES organizations(id) ON DELETE CASCADE,
			step INT NOT NULL,
			total_steps INT NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate organizations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, o *Organization) error {
	return CreateInTx(ctx, s.db, o)
}

// CreateInTx inserts an organization through an explicit handle so the
// registration transaction can reuse the same statement.
func CreateInTx(ctx context.Context, q storage.Querier, o *Organization) error {
	settings, err := json.Marshal(settingsOrEmpty(o.Settings))
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err = q.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.Name, o.Slug, o.Status, settings, o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Organization, error) {
	return scanOrg(s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, status, settings, created_at, updated_at
		FROM organizations WHERE id = $1`, id))
}

func (s *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	return scanOrg(s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, status, settings, created_at, updated_at
		FROM organizations WHERE slug = $1`, slug))
}

func (s *PostgresStore) Update(ctx context.Context, o *Organization) error {
	settings, err := json.Marshal(settingsOrEmpty(o.Settings))
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET name = $2, settings = $3, status = $4, updated_at = now()
		WHERE id = $1`,
		o.ID, o.Name, settings, o.Status,
	)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return UpdateStatusInTx(ctx, s.db, id, status)
}

// UpdateStatusInTx transitions an organization's lifecycle state through
// an explicit handle.
func UpdateStatusInTx(ctx context.Context, q storage.Querier, id string, status Status) error {
	res, err := q.ExecContext(ctx, `
		UPDATE organizations SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update organization status: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	return SlugExistsInTx(ctx, s.db, slug)
}

// SlugExistsInTx reports whether a slug is taken, through an explicit handle.
func SlugExistsInTx(ctx context.Context, q storage.Querier, slug string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetProgress(ctx context.Context, orgID string) (*OnboardingProgress, error) {
	p := &OnboardingProgress{}
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, step, total_steps, completed, updated_at
		FROM onboarding_progress WHERE organization_id = $1`, orgID,
	).Scan(&p.OrganizationID, &p.Step, &p.TotalSteps, &p.Completed, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get onboarding progress: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SaveProgress(ctx context.Context, p *OnboardingProgress) error {
	return SaveProgressInTx(ctx, s.db, p)
}

// SaveProgressInTx upserts onboarding progress through an explicit handle.
func SaveProgressInTx(ctx context.Context, q storage.Querier, p *OnboardingProgress) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		INSERT INTO onboarding_progress (organization_id, step, total_steps, completed, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id)
		DO UPDATE SET step = $2, total_steps = $3, completed = $4, updated_at = $5`,
		p.OrganizationID, p.Step, p.TotalSteps, p.Completed, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save onboarding progress: %w", err)
	}
	return nil
}

func scanOrg(row *sql.Row) (*Organization, error) {
	o := &Organization{}
	var settings []byte
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Status, &settings, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &o.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return o, nil
}

func settingsOrEmpty(s Settings) Settings {
	if s == nil {
		return Settings{}
	}
	return s
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
