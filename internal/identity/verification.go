package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/mediplex/mediplex/internal/idgen"
)

// ErrTokenExpired is returned for verification tokens past their window.
var ErrTokenExpired = errors.New("identity: verification token expired")

// VerificationTTL is how long an email verification link stays valid.
const VerificationTTL = 24 * time.Hour

// VerificationToken is a single-use email confirmation token. Only the
// SHA-256 hash of the raw value is ever stored.
type VerificationToken struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the token is past its validity window.
func (t *VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// NewVerificationToken mints a raw token for the user and the hashed
// record to persist. The raw value goes into the email link and is
// never stored.
func NewVerificationToken(userID string, ttl time.Duration) (raw string, rec *VerificationToken) {
	raw = idgen.Hex(32)
	now := time.Now().UTC()
	return raw, &VerificationToken{
		TokenHash: HashToken(raw),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// HashToken returns the hex SHA-256 of a raw verification token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
