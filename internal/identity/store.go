package identity

import "context"

// Store persists users and verification tokens.
type Store interface {
	// Create inserts a new user. Returns ErrEmailTaken if the email is
	// already registered.
	Create(ctx context.Context, u *User) error

	// Get returns a user by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*User, error)

	// GetByEmail returns a user by normalized email, or ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// CountByOrganization returns how many users an organization has.
	CountByOrganization(ctx context.Context, orgID string) (int, error)

	// MarkVerified flips a user to verified and active.
	MarkVerified(ctx context.Context, id string) error

	// SaveVerificationToken persists a hashed verification token.
	SaveVerificationToken(ctx context.Context, t *VerificationToken) error

	// ConsumeVerificationToken looks up a token by hash and deletes it,
	// returning the user it belongs to. Returns ErrNotFound for unknown
	// hashes and ErrTokenExpired for stale ones.
	ConsumeVerificationToken(ctx context.Context, hash string) (userID string, err error)
}
