package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mediplex/mediplex/internal/org"
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

// Migrate creates the billing tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			price_cents BIGINT NOT NULL,
			billing_cycle TEXT NOT NULL,
			trial_plan BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE TABLE IF NOT EXISTS feature_limits (
			plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
			feature_key TEXT NOT NULL,
			limit_value BIGINT NOT NULL,
			is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			reset_interval TEXT NOT NULL DEFAULT 'NEVER',
			PRIMARY KEY (plan_id, feature_key)
		);
		CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL UNIQUE REFERENCES organizations(id) ON DELETE CASCADE,
			plan_id TEXT NOT NULL REFERENCES plans(id),
			status TEXT NOT NULL,
			trial_ends_at TIMESTAMPTZ,
			period_ends_at TIMESTAMPTZ,
			gateway_ref TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_trial
			ON subscriptions(trial_ends_at) WHERE status = 'TRIAL';
		CREATE TABLE IF NOT EXISTS usage_counters (
			organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			feature_key TEXT NOT NULL,
			used_count BIGINT NOT NULL DEFAULT 0,
			reset_interval TEXT NOT NULL DEFAULT 'NEVER',
			last_reset_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (organization_id, feature_key)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate billing: %w", err)
	}
	return nil
}

func (s *PostgresStore) SeedCatalog(ctx context.Context, plans []*Plan, limits []*FeatureLimit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, p := range plans {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO plans (id, name, price_cents, billing_cycle, trial_plan)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = $2, price_cents = $3, billing_cycle = $4, trial_plan = $5`,
			p.ID, p.Name, p.PriceCents, p.Cycle, p.TrialPlan)
		if err != nil {
			return fmt.Errorf("seed plan %s: %w", p.Name, err)
		}
	}
	for _, l := range limits {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO feature_limits (plan_id, feature_key, limit_value, is_enabled, reset_interval)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (plan_id, feature_key) DO UPDATE SET
				limit_value = $3, is_enabled = $4, reset_interval = $5`,
			l.PlanID, l.FeatureKey, l.LimitValue, l.Enabled, l.Reset)
		if err != nil {
			return fmt.Errorf("seed limit %s/%s: %w", l.PlanID, l.FeatureKey, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetPlan(ctx context.Context, id string) (*Plan, error) {
	return scanPlan(s.db.QueryRowContext(ctx,
		`SELECT id, name, price_cents, billing_cycle, trial_plan FROM plans WHERE id = $1`, id))
}

func (s *PostgresStore) GetPlanByName(ctx context.Context, name string) (*Plan, error) {
	return scanPlan(s.db.QueryRowContext(ctx,
		`SELECT id, name, price_cents, billing_cycle, trial_plan FROM plans WHERE name = $1`, name))
}

func (s *PostgresStore) ListPlans(ctx context.Context) ([]*Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, price_cents, billing_cycle, trial_plan FROM plans ORDER BY price_cents`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*Plan
	for rows.Next() {
		p := &Plan{}
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Cycle, &p.TrialPlan); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetLimit(ctx context.Context, planID, featureKey string) (*FeatureLimit, error) {
	l := &FeatureLimit{}
	err := s.db.QueryRowContext(ctx, `
		SELECT plan_id, feature_key, limit_value, is_enabled, reset_interval
		FROM feature_limits WHERE plan_id = $1 AND feature_key = $2`,
		planID, featureKey,
	).Scan(&l.PlanID, &l.FeatureKey, &l.LimitValue, &l.Enabled, &l.Reset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLimitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get limit: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) ListLimits(ctx context.Context, planID string) ([]*FeatureLimit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_id, feature_key, limit_value, is_enabled, reset_interval
		FROM feature_limits WHERE plan_id = $1 ORDER BY feature_key`, planID)
	if err != nil {
		return nil, fmt.Errorf("list limits: %w", err)
	}
	defer rows.Close()

	var out []*FeatureLimit
	for rows.Next() {
		l := &FeatureLimit{}
		if err := rows.Scan(&l.PlanID, &l.FeatureKey, &l.LimitValue, &l.Enabled, &l.Reset); err != nil {
			return nil, fmt.Errorf("scan limit: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	return CreateSubscriptionInTx(ctx, s.db, sub)
}

// CreateSubscriptionInTx inserts a subscription through an explicit
// handle so the registration transaction can reuse the statement.
func CreateSubscriptionInTx(ctx context.Context, q storage.Querier, sub *Subscription) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	_, err := q.ExecContext(ctx, `
		INSERT INTO subscriptions (id, organization_id, plan_id, status,
			trial_ends_at, period_ends_at, gateway_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.OrganizationID, sub.PlanID, sub.Status,
		sub.TrialEndsAt, sub.PeriodEndsAt, sub.GatewayRef, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, orgID string) (*Subscription, error) {
	sub := &Subscription{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, plan_id, status, trial_ends_at, period_ends_at,
			gateway_ref, created_at, updated_at
		FROM subscriptions WHERE organization_id = $1`, orgID,
	).Scan(&sub.ID, &sub.OrganizationID, &sub.PlanID, &sub.Status, &sub.TrialEndsAt,
		&sub.PeriodEndsAt, &sub.GatewayRef, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, trial_ends_at = $4, period_ends_at = $5,
			gateway_ref = $6, updated_at = now()
		WHERE organization_id = $1`,
		sub.OrganizationID, sub.PlanID, sub.Status, sub.TrialEndsAt,
		sub.PeriodEndsAt, sub.GatewayRef,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoSubscription
	}
	return nil
}

func (s *PostgresStore) ListLapsedTrials(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, plan_id, status, trial_ends_at, period_ends_at,
			gateway_ref, created_at, updated_at
		FROM subscriptions
		WHERE status = 'TRIAL' AND trial_ends_at <= $1
		ORDER BY trial_ends_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list lapsed trials: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub := &Subscription{}
		if err := rows.Scan(&sub.ID, &sub.OrganizationID, &sub.PlanID, &sub.Status,
			&sub.TrialEndsAt, &sub.PeriodEndsAt, &sub.GatewayRef, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ExpireTrial flips the subscription and its organization to EXPIRED in
// one transaction so the two never disagree.
func (s *PostgresStore) ExpireTrial(ctx context.Context, subID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin expire: %w", err)
	}
	defer tx.Rollback()

	var orgID string
	err = tx.QueryRowContext(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = now()
		WHERE id = $1 AND status = 'TRIAL'
		RETURNING organization_id`, subID, SubExpired,
	).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoSubscription
	}
	if err != nil {
		return fmt.Errorf("expire subscription: %w", err)
	}
	if err := org.UpdateStatusInTx(ctx, tx, orgID, org.StatusExpired); err != nil {
		return fmt.Errorf("expire organization: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) InitCounter(ctx context.Context, c *UsageCounter) error {
	return InitCounterInTx(ctx, s.db, c)
}

// InitCounterInTx creates a zero counter through an explicit handle.
func InitCounterInTx(ctx context.Context, q storage.Querier, c *UsageCounter) error {
	now := time.Now().UTC()
	if c.LastResetAt.IsZero() {
		c.LastResetAt = now
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO usage_counters (organization_id, feature_key, used_count,
			reset_interval, last_reset_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, feature_key) DO NOTHING`,
		c.OrganizationID, c.FeatureKey, c.Used, c.Reset, c.LastResetAt, now,
	)
	if err != nil {
		return fmt.Errorf("init counter: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCounter(ctx context.Context, orgID, featureKey string) (*UsageCounter, error) {
	c := &UsageCounter{}
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, feature_key, used_count, reset_interval, last_reset_at, updated_at
		FROM usage_counters WHERE organization_id = $1 AND feature_key = $2`,
		orgID, featureKey,
	).Scan(&c.OrganizationID, &c.FeatureKey, &c.Used, &c.Reset, &c.LastResetAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &UsageCounter{OrganizationID: orgID, FeatureKey: featureKey, Reset: ResetNever}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get counter: %w", err)
	}
	return c, nil
}

// IncrementCounter is a single atomic upsert. Under N concurrent calls
// the counter advances by exactly N; there is no read-modify-write gap.
func (s *PostgresStore) IncrementCounter(ctx context.Context, orgID, featureKey string) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (organization_id, feature_key, used_count, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (organization_id, feature_key)
		DO UPDATE SET used_count = usage_counters.used_count + 1, updated_at = now()
		RETURNING used_count`,
		orgID, featureKey,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) ListCountersDueReset(ctx context.Context, cutoff time.Time, limit int) ([]*UsageCounter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization_id, feature_key, used_count, reset_interval, last_reset_at, updated_at
		FROM usage_counters
		WHERE reset_interval = 'MONTHLY' AND last_reset_at < $1
		ORDER BY last_reset_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list counters due reset: %w", err)
	}
	defer rows.Close()

	var out []*UsageCounter
	for rows.Next() {
		c := &UsageCounter{}
		if err := rows.Scan(&c.OrganizationID, &c.FeatureKey, &c.Used, &c.Reset,
			&c.LastResetAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ResetCounter(ctx context.Context, orgID, featureKey string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE usage_counters SET used_count = 0, last_reset_at = $3, updated_at = now()
		WHERE organization_id = $1 AND feature_key = $2`,
		orgID, featureKey, at)
	if err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return nil
}

func scanPlan(row *sql.Row) (*Plan, error) {
	p := &Plan{}
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Cycle, &p.TrialPlan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan: %w", err)
	}
	return p, nil
}
