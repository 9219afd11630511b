package registration

import (
	"context"

	"github.com/mediplex/mediplex/internal/logging"
)

// Mailer delivers transactional email. Registration only needs the
// verification message; delivery failures never fail the registration
// itself.
type Mailer interface {
	SendVerification(ctx context.Context, email, name, token string) error
}

// LogMailer writes the verification link to the log instead of sending
// mail. Default in development and tests.
type LogMailer struct {
	BaseURL string
}

func (m *LogMailer) SendVerification(ctx context.Context, email, name, token string) error {
	logging.L(ctx).Info("verification email (log mailer)",
		"to", email,
		"name", name,
		"link", m.BaseURL+"/verify-email?token="+token,
	)
	return nil
}
