package patients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mediplex/mediplex/internal/scope"
)

const table = "patients"

var (
	columns    = []string{"id", "organization_id", "first_name", "last_name", "email", "phone", "date_of_birth", "created_at", "updated_at"}
	searchable = []string{"first_name", "last_name", "email"}
	sortable   = map[string]string{
		"firstName": "first_name",
		"lastName":  "last_name",
		"createdAt": "created_at",
	}
)

// PostgresStore is a PostgreSQL-backed Store. All statements go through
// the scoped builder, so every one carries the tenant predicate.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the patients table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			date_of_birth TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_patients_org ON patients(organization_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate patients: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, p *Patient) error {
	sc, err := scope.For(table, p.OrganizationID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query, args, err := sc.InsertRow(map[string]any{
		"id":            p.ID,
		"first_name":    p.FirstName,
		"last_name":     p.LastName,
		"email":         p.Email,
		"phone":         p.Phone,
		"date_of_birth": p.DateOfBirth,
		"created_at":    p.CreatedAt,
		"updated_at":    p.UpdatedAt,
	}).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orgID, id string) (*Patient, error) {
	sc, err := scope.For(table, orgID)
	if err != nil {
		return nil, err
	}
	query, args, err := sc.Select(columns...).Where("id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	p := &Patient{}
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.OrganizationID, &p.FirstName, &p.LastName,
		&p.Email, &p.Phone, &p.DateOfBirth, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context, orgID string, params scope.SearchParams) (scope.Page[*Patient], error) {
	var zero scope.Page[*Patient]
	sc, err := scope.For(table, orgID)
	if err != nil {
		return zero, err
	}
	rowsQ, countQ := sc.Search(params, columns, searchable, sortable)

	query, args, err := countQ.ToSql()
	if err != nil {
		return zero, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return zero, fmt.Errorf("count patients: %w", err)
	}

	query, args, err = rowsQ.ToSql()
	if err != nil {
		return zero, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return zero, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p := &Patient{}
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.FirstName, &p.LastName,
			&p.Email, &p.Phone, &p.DateOfBirth, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return zero, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return zero, err
	}
	return scope.NewPage(out, total, params), nil
}

func (s *PostgresStore) Update(ctx context.Context, p *Patient) error {
	sc, err := scope.For(table, p.OrganizationID)
	if err != nil {
		return err
	}
	query, args, err := sc.Update().
		Set("first_name", p.FirstName).
		Set("last_name", p.LastName).
		Set("email", p.Email).
		Set("phone", p.Phone).
		Set("date_of_birth", p.DateOfBirth).
		Set("updated_at", time.Now().UTC()).
		Where("id = ?", p.ID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, orgID, id string) error {
	sc, err := scope.For(table, orgID)
	if err != nil {
		return err
	}
	query, args, err := sc.Delete().Where("id = ?", id).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	return requireRow(res)
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
