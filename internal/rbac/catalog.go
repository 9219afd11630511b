// Package rbac implements per-organization role-based access control
// over a flat permission catalog.
package rbac

// Permission names follow "resource:action". The catalog is the closed
// set of names a role may grant; unknown names are rejected at role
// creation time.
const (
	PatientsRead   = "patients:read"
	PatientsCreate = "patients:create"
	PatientsUpdate = "patients:update"
	PatientsDelete = "patients:delete"

	AppointmentsRead   = "appointments:read"
	AppointmentsCreate = "appointments:create"
	AppointmentsUpdate = "appointments:update"
	AppointmentsCancel = "appointments:cancel"

	RecordsRead  = "records:read"
	RecordsWrite = "records:write"

	PrescriptionsRead  = "prescriptions:read"
	PrescriptionsWrite = "prescriptions:write"

	BillingRead   = "billing:read"
	BillingManage = "billing:manage"

	StaffRead   = "staff:read"
	StaffManage = "staff:manage"

	ReportsRead = "reports:read"

	SettingsManage = "settings:manage"
	RolesManage    = "roles:manage"
)

// Catalog lists every permission the platform knows about.
var Catalog = []string{
	PatientsRead, PatientsCreate, PatientsUpdate, PatientsDelete,
	AppointmentsRead, AppointmentsCreate, AppointmentsUpdate, AppointmentsCancel,
	RecordsRead, RecordsWrite,
	PrescriptionsRead, PrescriptionsWrite,
	BillingRead, BillingManage,
	StaffRead, StaffManage,
	ReportsRead,
	SettingsManage, RolesManage,
}

var catalogSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Catalog))
	for _, p := range Catalog {
		m[p] = struct{}{}
	}
	return m
}()

// ValidPermission reports whether a name is in the catalog.
func ValidPermission(name string) bool {
	_, ok := catalogSet[name]
	return ok
}

// InvalidPermissions returns the names not present in the catalog.
func InvalidPermissions(names []string) []string {
	var bad []string
	for _, n := range names {
		if !ValidPermission(n) {
			bad = append(bad, n)
		}
	}
	return bad
}
