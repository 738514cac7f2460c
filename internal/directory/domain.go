// Package directory exposes read-only, tenant-scoped lookups of organisational master data.
// Entities refer to each other by id only; callers resolve chains explicitly.
package directory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// User is a tenant member holding exactly one role.
type User struct {
	ID           uuid.UUID
	TenantID     string
	ObjectID     string
	Email        string
	DisplayName  string
	Role         shared.Role
	DepartmentID *uuid.UUID
	Active       bool
}

// Department groups cost centers.
type Department struct {
	ID     uuid.UUID
	Code   string
	Name   string
	Active bool
}

// CostCenter belongs to a department and is owned by a resource owner (RO).
type CostCenter struct {
	ID           uuid.UUID
	DepartmentID uuid.UUID
	Code         string
	Name         string
	ROUserID     *uuid.UUID
	Active       bool
}

// Project is the target of demand, supply and actual lines.
type Project struct {
	ID     uuid.UUID
	Code   string
	Name   string
	Active bool
}

// Resource is a person (or external) that can be allocated.
type Resource struct {
	ID           uuid.UUID
	CostCenterID uuid.UUID
	UserID       *uuid.UUID
	EmployeeID   string
	DisplayName  string
	Email        string
	External     bool
	Active       bool
}

// Placeholder represents a future hire used in long-range demand.
type Placeholder struct {
	ID           uuid.UUID
	Name         string
	SkillProfile string
	DepartmentID *uuid.UUID
	CostCenterID *uuid.UUID
	Active       bool
}

// Holiday is a tenant-specific non-working day.
type Holiday struct {
	Date time.Time
	Name string
}

// Catalog is a tenant-wide snapshot of master data, including inactive rows so that
// historical lines still resolve names.
type Catalog struct {
	Departments  map[uuid.UUID]Department
	CostCenters  map[uuid.UUID]CostCenter
	Projects     map[uuid.UUID]Project
	Resources    map[uuid.UUID]Resource
	Placeholders map[uuid.UUID]Placeholder
}

// Directory is the lookup port consumed by the planning core.
// Single-entity lookups return only active rows and fail with NOT_FOUND otherwise.
type Directory interface {
	Project(ctx context.Context, tenantID string, id uuid.UUID) (Project, error)
	Resource(ctx context.Context, tenantID string, id uuid.UUID) (Resource, error)
	// ResourceRecord returns the resource even when it has been deactivated.
	ResourceRecord(ctx context.Context, tenantID string, id uuid.UUID) (Resource, error)
	ResourceForUser(ctx context.Context, tenantID string, userID uuid.UUID) (Resource, error)
	Placeholder(ctx context.Context, tenantID string, id uuid.UUID) (Placeholder, error)
	CostCenter(ctx context.Context, tenantID string, id uuid.UUID) (CostCenter, error)
	User(ctx context.Context, tenantID string, id uuid.UUID) (User, error)
	// DirectorOf returns the first active Director assigned to the department, or nil.
	DirectorOf(ctx context.Context, tenantID string, departmentID uuid.UUID) (*User, error)
	// UsersWithRoles returns active users holding any of roles, ordered by display name.
	UsersWithRoles(ctx context.Context, tenantID string, roles ...shared.Role) ([]User, error)
	Holidays(ctx context.Context, tenantID string, from, to time.Time) ([]Holiday, error)
	Catalog(ctx context.Context, tenantID string) (Catalog, error)
}

// Resolve returns the department and cost-center names for a resource, defaulting to
// "Unassigned" when any link in the chain is missing.
func (c Catalog) Resolve(resourceID uuid.UUID) (dept *Department, cc *CostCenter) {
	res, ok := c.Resources[resourceID]
	if !ok {
		return nil, nil
	}
	if found, ok := c.CostCenters[res.CostCenterID]; ok {
		cc = &found
		if d, ok := c.Departments[found.DepartmentID]; ok {
			dept = &d
		}
	}
	return dept, cc
}

// ResolvePlaceholder returns the placeholder's own department and cost center.
func (c Catalog) ResolvePlaceholder(placeholderID uuid.UUID) (dept *Department, cc *CostCenter) {
	ph, ok := c.Placeholders[placeholderID]
	if !ok {
		return nil, nil
	}
	if ph.DepartmentID != nil {
		if d, ok := c.Departments[*ph.DepartmentID]; ok {
			dept = &d
		}
	}
	if ph.CostCenterID != nil {
		if found, ok := c.CostCenters[*ph.CostCenterID]; ok {
			cc = &found
		}
	}
	return dept, cc
}
