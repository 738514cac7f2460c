// Package directorytest provides an in-memory directory.Directory for tests.
package directorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/directory"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Memory is a single-tenant in-memory directory.
type Memory struct {
	mu           sync.RWMutex
	TenantID     string
	users        map[uuid.UUID]directory.User
	departments  map[uuid.UUID]directory.Department
	costCenters  map[uuid.UUID]directory.CostCenter
	projects     map[uuid.UUID]directory.Project
	resources    map[uuid.UUID]directory.Resource
	placeholders map[uuid.UUID]directory.Placeholder
	holidays     []directory.Holiday
}

// New returns an empty directory scoped to tenantID.
func New(tenantID string) *Memory {
	return &Memory{
		TenantID:     tenantID,
		users:        map[uuid.UUID]directory.User{},
		departments:  map[uuid.UUID]directory.Department{},
		costCenters:  map[uuid.UUID]directory.CostCenter{},
		projects:     map[uuid.UUID]directory.Project{},
		resources:    map[uuid.UUID]directory.Resource{},
		placeholders: map[uuid.UUID]directory.Placeholder{},
	}
}

// AddUser registers an active user.
func (m *Memory) AddUser(name string, role shared.Role, departmentID *uuid.UUID) directory.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := directory.User{
		ID:           uuid.New(),
		TenantID:     m.TenantID,
		ObjectID:     "oid-" + name,
		Email:        name + "@example.com",
		DisplayName:  name,
		Role:         role,
		DepartmentID: departmentID,
		Active:       true,
	}
	m.users[u.ID] = u
	return u
}

// Deactivate marks a user inactive.
func (m *Memory) Deactivate(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.Active = false
	m.users[userID] = u
}

// DeactivateResource marks a resource inactive.
func (m *Memory) DeactivateResource(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.resources[id]
	r.Active = false
	m.resources[id] = r
}

// AddDepartment registers a department.
func (m *Memory) AddDepartment(name string) directory.Department {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := directory.Department{ID: uuid.New(), Code: name, Name: name, Active: true}
	m.departments[d.ID] = d
	return d
}

// AddCostCenter registers a cost center owned by ro (may be nil).
func (m *Memory) AddCostCenter(name string, departmentID uuid.UUID, ro *uuid.UUID) directory.CostCenter {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc := directory.CostCenter{ID: uuid.New(), DepartmentID: departmentID, Code: name, Name: name, ROUserID: ro, Active: true}
	m.costCenters[cc.ID] = cc
	return cc
}

// AddProject registers a project.
func (m *Memory) AddProject(name string) directory.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := directory.Project{ID: uuid.New(), Code: name, Name: name, Active: true}
	m.projects[p.ID] = p
	return p
}

// RenameProject changes a project's display name.
func (m *Memory) RenameProject(id uuid.UUID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.projects[id]
	p.Name = name
	m.projects[id] = p
}

// AddResource registers a resource in a cost center, optionally linked to a user.
func (m *Memory) AddResource(name string, costCenterID uuid.UUID, userID *uuid.UUID) directory.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := directory.Resource{
		ID:           uuid.New(),
		CostCenterID: costCenterID,
		UserID:       userID,
		EmployeeID:   "E-" + name,
		DisplayName:  name,
		Email:        name + "@example.com",
		Active:       true,
	}
	m.resources[r.ID] = r
	return r
}

// AddPlaceholder registers a placeholder with optional org assignment.
func (m *Memory) AddPlaceholder(name string, departmentID, costCenterID *uuid.UUID) directory.Placeholder {
	m.mu.Lock()
	defer m.mu.Unlock()
	ph := directory.Placeholder{ID: uuid.New(), Name: name, DepartmentID: departmentID, CostCenterID: costCenterID, Active: true}
	m.placeholders[ph.ID] = ph
	return ph
}

// AddHoliday registers a holiday.
func (m *Memory) AddHoliday(date time.Time, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, directory.Holiday{Date: date, Name: name})
}

func (m *Memory) tenant(tenantID string) bool { return tenantID == m.TenantID }

// Project implements directory.Directory.
func (m *Memory) Project(_ context.Context, tenantID string, id uuid.UUID) (directory.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok || !p.Active || !m.tenant(tenantID) {
		return directory.Project{}, shared.NotFound("project")
	}
	return p, nil
}

// Resource implements directory.Directory.
func (m *Memory) Resource(_ context.Context, tenantID string, id uuid.UUID) (directory.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok || !r.Active || !m.tenant(tenantID) {
		return directory.Resource{}, shared.NotFound("resource")
	}
	return r, nil
}

// ResourceRecord implements directory.Directory.
func (m *Memory) ResourceRecord(_ context.Context, tenantID string, id uuid.UUID) (directory.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok || !m.tenant(tenantID) {
		return directory.Resource{}, shared.NotFound("resource")
	}
	return r, nil
}

// ResourceForUser implements directory.Directory.
func (m *Memory) ResourceForUser(_ context.Context, tenantID string, userID uuid.UUID) (directory.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tenant(tenantID) {
		for _, r := range m.resources {
			if r.Active && r.UserID != nil && *r.UserID == userID {
				return r, nil
			}
		}
	}
	return directory.Resource{}, shared.NotFound("resource for user")
}

// Placeholder implements directory.Directory.
func (m *Memory) Placeholder(_ context.Context, tenantID string, id uuid.UUID) (directory.Placeholder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ph, ok := m.placeholders[id]
	if !ok || !ph.Active || !m.tenant(tenantID) {
		return directory.Placeholder{}, shared.NotFound("placeholder")
	}
	return ph, nil
}

// CostCenter implements directory.Directory.
func (m *Memory) CostCenter(_ context.Context, tenantID string, id uuid.UUID) (directory.CostCenter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cc, ok := m.costCenters[id]
	if !ok || !cc.Active || !m.tenant(tenantID) {
		return directory.CostCenter{}, shared.NotFound("cost center")
	}
	return cc, nil
}

// User implements directory.Directory.
func (m *Memory) User(_ context.Context, tenantID string, id uuid.UUID) (directory.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok || !u.Active || !m.tenant(tenantID) {
		return directory.User{}, shared.NotFound("user")
	}
	return u, nil
}

// DirectorOf implements directory.Directory.
func (m *Memory) DirectorOf(_ context.Context, tenantID string, departmentID uuid.UUID) (*directory.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.tenant(tenantID) {
		return nil, nil
	}
	for _, u := range m.sortedUsers() {
		if u.Active && u.Role == shared.RoleDirector && u.DepartmentID != nil && *u.DepartmentID == departmentID {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

// UsersWithRoles implements directory.Directory.
func (m *Memory) UsersWithRoles(_ context.Context, tenantID string, roles ...shared.Role) ([]directory.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.tenant(tenantID) {
		return nil, nil
	}
	var out []directory.User
	for _, u := range m.sortedUsers() {
		if !u.Active {
			continue
		}
		for _, role := range roles {
			if u.Role == role {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) sortedUsers() []directory.User {
	users := make([]directory.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].DisplayName != users[j].DisplayName {
			return users[i].DisplayName < users[j].DisplayName
		}
		return users[i].ID.String() < users[j].ID.String()
	})
	return users
}

// Holidays implements directory.Directory.
func (m *Memory) Holidays(_ context.Context, tenantID string, from, to time.Time) ([]directory.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.tenant(tenantID) {
		return nil, nil
	}
	var out []directory.Holiday
	for _, h := range m.holidays {
		if !h.Date.Before(from) && !h.Date.After(to) {
			out = append(out, h)
		}
	}
	return out, nil
}

// Catalog implements directory.Directory.
func (m *Memory) Catalog(_ context.Context, tenantID string) (directory.Catalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cat := directory.Catalog{
		Departments:  map[uuid.UUID]directory.Department{},
		CostCenters:  map[uuid.UUID]directory.CostCenter{},
		Projects:     map[uuid.UUID]directory.Project{},
		Resources:    map[uuid.UUID]directory.Resource{},
		Placeholders: map[uuid.UUID]directory.Placeholder{},
	}
	if !m.tenant(tenantID) {
		return cat, nil
	}
	for k, v := range m.departments {
		cat.Departments[k] = v
	}
	for k, v := range m.costCenters {
		cat.CostCenters[k] = v
	}
	for k, v := range m.projects {
		cat.Projects[k] = v
	}
	for k, v := range m.resources {
		cat.Resources[k] = v
	}
	for k, v := range m.placeholders {
		cat.Placeholders[k] = v
	}
	return cat, nil
}

var _ directory.Directory = (*Memory)(nil)
