package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature or
	// expiry checks.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrNoOrganization is returned when a token (or the user it would
	// be issued for) carries no organization binding. Such tokens are
	// never issued and never accepted.
	ErrNoOrganization = errors.New("identity: token has no organization")
)

// Claims is the payload of a session token. OrganizationID is the only
// trusted source of tenant identity for authenticated requests.
type Claims struct {
	jwt.RegisteredClaims
	Email          string   `json:"email"`
	DisplayID      string   `json:"displayUserId"`
	Roles          []string `json:"roles"`
	OrganizationID string   `json:"organizationId"`
}

// TokenManager issues and validates HS256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a manager signing with the given secret.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the user. Users without an organization
// cannot receive tokens.
func (m *TokenManager) Issue(u *User) (string, error) {
	if u.OrganizationID == "" {
		return "", ErrNoOrganization
	}
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Email:          u.Email,
		DisplayID:      u.DisplayID,
		Roles:          u.Roles,
		OrganizationID: u.OrganizationID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token. Tokens without an organization
// claim are rejected even when correctly signed.
func (m *TokenManager) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.OrganizationID == "" {
		return nil, ErrNoOrganization
	}
	return claims, nil
}
