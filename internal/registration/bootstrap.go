// Package registration creates a complete tenant in one atomic step:
// organization, admin user, default roles, trial subscription, usage
// counters, onboarding progress and the email verification token all
// commit together or not at all.
package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/mediplex/mediplex/internal/billing"
	"github.com/mediplex/mediplex/internal/identity"
	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/rbac"
	"github.com/mediplex/mediplex/internal/syncutil"
)

// Bootstrap is the full entity graph of a new tenant, assembled in
// memory by the service and persisted atomically by a Bootstrapper.
type Bootstrap struct {
	Organization *org.Organization
	Admin        *identity.User
	Roles        []*rbac.Role
	Subscription *billing.Subscription
	Counters     []*billing.UsageCounter
	Onboarding   *org.OnboardingProgress
	Verification *identity.VerificationToken
}

// Bootstrapper persists a tenant bootstrap atomically. On any failure
// nothing of the graph remains visible.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, b *Bootstrap) error
}

// PostgresBootstrapper writes the whole graph in a single serializable
// transaction, passing the one transaction handle to every statement.
type PostgresBootstrapper struct {
	db *sql.DB
}

// NewPostgresBootstrapper creates a bootstrapper over the database.
func NewPostgresBootstrapper(db *sql.DB) *PostgresBootstrapper {
	return &PostgresBootstrapper{db: db}
}

func (p *PostgresBootstrapper) Bootstrap(ctx context.Context, b *Bootstrap) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin bootstrap: %w", err)
	}
	defer tx.Rollback()

	// Re-check uniqueness inside the transaction. The public
	// availability endpoint is advisory; this is the authoritative
	// check, and the unique constraints below are the backstop for
	// two registrations racing past it.
	taken, err := org.SlugExistsInTx(ctx, tx, b.Organization.Slug)
	if err != nil {
		return err
	}
	if taken {
		return org.ErrSlugTaken
	}
	taken, err = identity.EmailExistsInTx(ctx, tx, b.Admin.Email)
	if err != nil {
		return err
	}
	if taken {
		return identity.ErrEmailTaken
	}

	if err := org.CreateInTx(ctx, tx, b.Organization); err != nil {
		return err
	}
	if err := identity.CreateInTx(ctx, tx, b.Admin); err != nil {
		return err
	}
	for _, role := range b.Roles {
		if err := rbac.CreateInTx(ctx, tx, role); err != nil {
			return err
		}
	}
	if err := billing.CreateSubscriptionInTx(ctx, tx, b.Subscription); err != nil {
		return err
	}
	for _, c := range b.Counters {
		if err := billing.InitCounterInTx(ctx, tx, c); err != nil {
			return err
		}
	}
	if err := org.SaveProgressInTx(ctx, tx, b.Onboarding); err != nil {
		return err
	}
	if err := identity.SaveVerificationTokenInTx(ctx, tx, b.Verification); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapCommitErr(err)
	}
	return nil
}

// mapCommitErr turns a unique violation surfacing at commit into the
// typed conflict for the colliding field.
func mapCommitErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if strings.Contains(pqErr.Constraint, "users") || strings.Contains(pqErr.Constraint, "email") {
			return identity.ErrEmailTaken
		}
		return org.ErrSlugTaken
	}
	return fmt.Errorf("commit bootstrap: %w", err)
}

// MemoryBootstrapper coordinates the in-memory stores. A sharded lock
// on the slug serializes racing registrations for the same name; a
// partial bootstrap is rolled back by deleting what was written.
type MemoryBootstrapper struct {
	orgs    *org.MemoryStore
	users   *identity.MemoryStore
	roles   *rbac.MemoryStore
	billing *billing.MemoryStore

	slugLocks syncutil.ShardedMutex
}

// NewMemoryBootstrapper creates a bootstrapper over the in-memory stores.
func NewMemoryBootstrapper(orgs *org.MemoryStore, users *identity.MemoryStore, roles *rbac.MemoryStore, bill *billing.MemoryStore) *MemoryBootstrapper {
	return &MemoryBootstrapper{orgs: orgs, users: users, roles: roles, billing: bill}
}

func (m *MemoryBootstrapper) Bootstrap(ctx context.Context, b *Bootstrap) (err error) {
	unlock := m.slugLocks.Lock(b.Organization.Slug)
	defer unlock()

	if err := m.orgs.Create(ctx, b.Organization); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			m.undo(ctx, b)
		}
	}()

	if err = m.users.Create(ctx, b.Admin); err != nil {
		return err
	}
	for _, role := range b.Roles {
		if err = m.roles.Create(ctx, role); err != nil {
			return err
		}
	}
	if err = m.billing.CreateSubscription(ctx, b.Subscription); err != nil {
		return err
	}
	for _, c := range b.Counters {
		if err = m.billing.InitCounter(ctx, c); err != nil {
			return err
		}
	}
	if err = m.orgs.SaveProgress(ctx, b.Onboarding); err != nil {
		return err
	}
	if err = m.users.SaveVerificationToken(ctx, b.Verification); err != nil {
		return err
	}
	return nil
}

func (m *MemoryBootstrapper) undo(ctx context.Context, b *Bootstrap) {
	m.billing.DeleteByOrganization(ctx, b.Organization.ID)
	m.roles.DeleteByOrganization(ctx, b.Organization.ID)
	_ = m.users.Delete(ctx, b.Admin.ID)
	_ = m.orgs.Delete(ctx, b.Organization.ID)
}
