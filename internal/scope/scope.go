// Package scope builds tenant-scoped SQL. Every statement it produces
// carries an organization_id predicate; repositories that go through it
// cannot forget the tenant filter.
package scope

import (
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ErrNoOrganization is returned when a query is built without a tenant.
var ErrNoOrganization = errors.New("scope: organization id required")

// TenantColumn is the column every tenant-owned table carries.
const TenantColumn = "organization_id"

// Scoped builds statements for one table on behalf of one organization.
type Scoped struct {
	table string
	orgID string
}

// For creates a builder for the table, bound to the organization.
// An empty organization id is a programming error surfaced early,
// never a silent unscoped query.
func For(table, orgID string) (Scoped, error) {
	if orgID == "" {
		return Scoped{}, ErrNoOrganization
	}
	return Scoped{table: table, orgID: orgID}, nil
}

// OrganizationID returns the tenant this builder is bound to.
func (s Scoped) OrganizationID() string { return s.orgID }

func (s Scoped) where() sq.Eq {
	return sq.Eq{s.table + "." + TenantColumn: s.orgID}
}

// Select starts a SELECT over the scoped table.
func (s Scoped) Select(columns ...string) sq.SelectBuilder {
	return sq.Select(columns...).
		From(s.table).
		Where(s.where()).
		PlaceholderFormat(sq.Dollar)
}

// Count starts a COUNT(*) over the scoped table.
func (s Scoped) Count() sq.SelectBuilder {
	return sq.Select("COUNT(*)").
		From(s.table).
		Where(s.where()).
		PlaceholderFormat(sq.Dollar)
}

// Insert starts an INSERT that always sets the tenant column.
func (s Scoped) Insert() sq.InsertBuilder {
	return sq.Insert(s.table).
		Columns(TenantColumn).
		PlaceholderFormat(sq.Dollar)
}

// InsertRow builds an INSERT from a column map, with the tenant column
// forced to the scoped organization regardless of what the map says.
func (s Scoped) InsertRow(values map[string]any) sq.InsertBuilder {
	values[TenantColumn] = s.orgID
	return sq.Insert(s.table).
		SetMap(values).
		PlaceholderFormat(sq.Dollar)
}

// Update starts an UPDATE constrained to the scoped organization.
func (s Scoped) Update() sq.UpdateBuilder {
	return sq.Update(s.table).
		Where(sq.Eq{TenantColumn: s.orgID}).
		PlaceholderFormat(sq.Dollar)
}

// Delete starts a DELETE constrained to the scoped organization.
func (s Scoped) Delete() sq.DeleteBuilder {
	return sq.Delete(s.table).
		Where(sq.Eq{TenantColumn: s.orgID}).
		PlaceholderFormat(sq.Dollar)
}

// Search applies pagination, filtering and sorting to a SELECT and
// returns it alongside the matching COUNT query. searchable lists the
// columns a free-text term matches against; sortable whitelists
// caller-facing sort keys to real columns. Without a recognized sort
// key the result is ordered by created_at descending.
func (s Scoped) Search(p SearchParams, columns, searchable []string, sortable map[string]string) (rows, count sq.SelectBuilder) {
	p = p.Normalize()

	rows = s.Select(columns...)
	count = s.Count()

	for _, j := range p.Joins {
		rows = rows.LeftJoin(j)
		count = count.LeftJoin(j)
	}

	if p.Search != "" && len(searchable) > 0 {
		term := "%" + escapeLike(p.Search) + "%"
		or := make(sq.Or, 0, len(searchable))
		for _, col := range searchable {
			or = append(or, sq.ILike{col: term})
		}
		rows = rows.Where(or)
		count = count.Where(or)
	}

	if col, ok := sortable[p.SortBy]; ok {
		rows = rows.OrderBy(col + " " + p.SortDir)
	} else {
		// No sort requested (or an unknown key): newest rows first.
		rows = rows.OrderBy(s.table + ".created_at DESC")
	}

	rows = rows.
		Limit(uint64(p.Limit)).
		Offset(uint64((p.Page - 1) * p.Limit))
	return rows, count
}

// escapeLike neutralizes LIKE metacharacters in user search terms.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
