package rbac

import (
	"github.com/mediplex/mediplex/internal/idgen"
)

// Default role names seeded into every new organization.
const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleNurse        = "nurse"
	RoleReceptionist = "receptionist"
)

// defaultGrants maps each seeded role to its exact permission list.
// The admin role gets the full catalog; the rest are enumerated
// explicitly so adding a permission to the catalog never widens a
// clinical role by accident.
var defaultGrants = map[string][]string{
	RoleAdmin: Catalog,
	RoleDoctor: {
		PatientsRead, PatientsCreate, PatientsUpdate,
		AppointmentsRead, AppointmentsCreate, AppointmentsUpdate, AppointmentsCancel,
		RecordsRead, RecordsWrite,
		PrescriptionsRead, PrescriptionsWrite,
		ReportsRead,
	},
	RoleNurse: {
		PatientsRead, PatientsUpdate,
		AppointmentsRead, AppointmentsUpdate,
		RecordsRead, RecordsWrite,
		PrescriptionsRead,
	},
	RoleReceptionist: {
		PatientsRead, PatientsCreate,
		AppointmentsRead, AppointmentsCreate, AppointmentsCancel,
		BillingRead,
	},
}

var defaultDescriptions = map[string]string{
	RoleAdmin:        "Full access to every feature and setting",
	RoleDoctor:       "Clinical access to patients, records and prescriptions",
	RoleNurse:        "Care access to patients and records",
	RoleReceptionist: "Front-desk access to patients, scheduling and billing",
}

// seedOrder keeps seeded role creation deterministic.
var seedOrder = []string{RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist}

// DefaultRoles builds the system roles for a new organization.
func DefaultRoles(orgID string) []*Role {
	roles := make([]*Role, 0, len(seedOrder))
	for _, name := range seedOrder {
		roles = append(roles, &Role{
			ID:             idgen.WithPrefix("role_"),
			OrganizationID: orgID,
			Name:           name,
			Description:    defaultDescriptions[name],
			Permissions:    append([]string(nil), defaultGrants[name]...),
			SystemRole:     true,
		})
	}
	return roles
}
