// Package patients is the patient directory, and the reference consumer
// of the tenant-scoped data access layer.
package patients

import (
	"context"
	"errors"
	"time"

	"github.com/mediplex/mediplex/internal/scope"
)

// ErrNotFound is returned for missing patients. Lookups of patients
// owned by another organization return the same error; the rows are
// invisible, not forbidden.
var ErrNotFound = errors.New("patients: patient not found")

// Patient is one organization's patient record.
type Patient struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	DateOfBirth    string    `json:"dateOfBirth,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store persists patients per organization.
type Store interface {
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, orgID, id string) (*Patient, error)
	List(ctx context.Context, orgID string, params scope.SearchParams) (scope.Page[*Patient], error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, orgID, id string) error
}
