// Package org manages organizations (tenants) and the request-scoped
// tenant context every other package keys its data on.
package org

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an organization doesn't exist.
	ErrNotFound = errors.New("org: organization not found")
	// ErrSlugTaken is returned when the requested slug is already in use.
	ErrSlugTaken = errors.New("org: slug already taken")
)

// Status is the lifecycle state of an organization.
type Status string

const (
	StatusTrial     Status = "TRIAL"
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusSuspended Status = "SUSPENDED"
	StatusCancelled Status = "CANCELLED"
)

// Settings holds per-organization configuration as free-form JSON.
type Settings map[string]any

// Organization is a tenant on the platform. Every row of tenant-owned
// data carries its ID, and every authenticated request resolves to
// exactly one of them.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    Status    `json:"status"`
	Settings  Settings  `json:"settings,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Active reports whether the organization may serve requests at all.
func (o *Organization) Active() bool {
	return o.Status == StatusTrial || o.Status == StatusActive
}

// OnboardingProgress tracks how far a new organization has gotten
// through initial setup.
type OnboardingProgress struct {
	OrganizationID string    `json:"organizationId"`
	Step           int       `json:"step"`
	TotalSteps     int       `json:"totalSteps"`
	Completed      bool      `json:"completed"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// OnboardingSteps is the number of setup steps a fresh organization
// walks through before its dashboard unlocks.
const OnboardingSteps = 5
