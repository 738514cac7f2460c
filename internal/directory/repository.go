package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/resource-planning/internal/platform/db"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Repository implements Directory against Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func notFound(entity string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(entity)
	}
	return fmt.Errorf("directory: load %s: %w", entity, err)
}

// Project implements Directory.
func (r *Repository) Project(ctx context.Context, tenantID string, id uuid.UUID) (Project, error) {
	var p Project
	err := db.Querier(ctx, r.pool).QueryRow(ctx, `SELECT id, code, name, is_active FROM projects
WHERE tenant_id = $1 AND id = $2 AND is_active`, tenantID, id).Scan(&p.ID, &p.Code, &p.Name, &p.Active)
	if err != nil {
		return Project{}, notFound("project", err)
	}
	return p, nil
}

const resourceColumns = `id, cost_center_id, user_id, employee_id, display_name, COALESCE(email, ''), is_external, is_active`

func scanResource(row pgx.Row) (Resource, error) {
	var res Resource
	err := row.Scan(&res.ID, &res.CostCenterID, &res.UserID, &res.EmployeeID, &res.DisplayName, &res.Email, &res.External, &res.Active)
	return res, err
}

// Resource implements Directory.
func (r *Repository) Resource(ctx context.Context, tenantID string, id uuid.UUID) (Resource, error) {
	res, err := scanResource(db.Querier(ctx, r.pool).QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources
WHERE tenant_id = $1 AND id = $2 AND is_active`, tenantID, id))
	if err != nil {
		return Resource{}, notFound("resource", err)
	}
	return res, nil
}

// ResourceRecord implements Directory.
func (r *Repository) ResourceRecord(ctx context.Context, tenantID string, id uuid.UUID) (Resource, error) {
	res, err := scanResource(db.Querier(ctx, r.pool).QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources
WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return Resource{}, notFound("resource", err)
	}
	return res, nil
}

// ResourceForUser implements Directory.
func (r *Repository) ResourceForUser(ctx context.Context, tenantID string, userID uuid.UUID) (Resource, error) {
	res, err := scanResource(db.Querier(ctx, r.pool).QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources
WHERE tenant_id = $1 AND user_id = $2 AND is_active
ORDER BY created_at LIMIT 1`, tenantID, userID))
	if err != nil {
		return Resource{}, notFound("resource for user", err)
	}
	return res, nil
}

// Placeholder implements Directory.
func (r *Repository) Placeholder(ctx context.Context, tenantID string, id uuid.UUID) (Placeholder, error) {
	var ph Placeholder
	err := db.Querier(ctx, r.pool).QueryRow(ctx, `SELECT id, name, COALESCE(skill_profile, ''), department_id, cost_center_id, is_active
FROM placeholders WHERE tenant_id = $1 AND id = $2 AND is_active`, tenantID, id).
		Scan(&ph.ID, &ph.Name, &ph.SkillProfile, &ph.DepartmentID, &ph.CostCenterID, &ph.Active)
	if err != nil {
		return Placeholder{}, notFound("placeholder", err)
	}
	return ph, nil
}

// CostCenter implements Directory.
func (r *Repository) CostCenter(ctx context.Context, tenantID string, id uuid.UUID) (CostCenter, error) {
	var cc CostCenter
	err := db.Querier(ctx, r.pool).QueryRow(ctx, `SELECT id, department_id, code, name, ro_user_id, is_active
FROM cost_centers WHERE tenant_id = $1 AND id = $2 AND is_active`, tenantID, id).
		Scan(&cc.ID, &cc.DepartmentID, &cc.Code, &cc.Name, &cc.ROUserID, &cc.Active)
	if err != nil {
		return CostCenter{}, notFound("cost center", err)
	}
	return cc, nil
}

const userColumns = `id, tenant_id, object_id, email, display_name, role, department_id, is_active`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.TenantID, &u.ObjectID, &u.Email, &u.DisplayName, &role, &u.DepartmentID, &u.Active); err != nil {
		return User{}, err
	}
	parsed, err := shared.ParseRole(role)
	if err != nil {
		return User{}, fmt.Errorf("directory: user %s: %w", u.ID, err)
	}
	u.Role = parsed
	return u, nil
}

// User implements Directory.
func (r *Repository) User(ctx context.Context, tenantID string, id uuid.UUID) (User, error) {
	u, err := scanUser(db.Querier(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users
WHERE tenant_id = $1 AND id = $2 AND is_active`, tenantID, id))
	if err != nil {
		return User{}, notFound("user", err)
	}
	return u, nil
}

// DirectorOf implements Directory.
func (r *Repository) DirectorOf(ctx context.Context, tenantID string, departmentID uuid.UUID) (*User, error) {
	u, err := scanUser(db.Querier(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users
WHERE tenant_id = $1 AND department_id = $2 AND role = $3 AND is_active
ORDER BY created_at LIMIT 1`, tenantID, departmentID, string(shared.RoleDirector)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: director of %s: %w", departmentID, err)
	}
	return &u, nil
}

// UsersWithRoles implements Directory.
func (r *Repository) UsersWithRoles(ctx context.Context, tenantID string, roles ...shared.Role) ([]User, error) {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	rows, err := db.Querier(ctx, r.pool).Query(ctx, `SELECT `+userColumns+` FROM users
WHERE tenant_id = $1 AND role = ANY($2) AND is_active
ORDER BY display_name, id`, tenantID, names)
	if err != nil {
		return nil, fmt.Errorf("directory: users with roles: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Holidays implements Directory.
func (r *Repository) Holidays(ctx context.Context, tenantID string, from, to time.Time) ([]Holiday, error) {
	rows, err := db.Querier(ctx, r.pool).Query(ctx, `SELECT date, name FROM holidays
WHERE tenant_id = $1 AND date BETWEEN $2 AND $3 ORDER BY date`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("directory: holidays: %w", err)
	}
	defer rows.Close()
	var out []Holiday
	for rows.Next() {
		var h Holiday
		if err := rows.Scan(&h.Date, &h.Name); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Catalog implements Directory. Inactive rows are included.
func (r *Repository) Catalog(ctx context.Context, tenantID string) (Catalog, error) {
	q := db.Querier(ctx, r.pool)
	cat := Catalog{
		Departments:  map[uuid.UUID]Department{},
		CostCenters:  map[uuid.UUID]CostCenter{},
		Projects:     map[uuid.UUID]Project{},
		Resources:    map[uuid.UUID]Resource{},
		Placeholders: map[uuid.UUID]Placeholder{},
	}
	if err := collect(ctx, q, `SELECT id, code, name, is_active FROM departments WHERE tenant_id = $1`, tenantID, func(row pgx.Rows) error {
		var d Department
		if err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Active); err != nil {
			return err
		}
		cat.Departments[d.ID] = d
		return nil
	}); err != nil {
		return Catalog{}, err
	}
	if err := collect(ctx, q, `SELECT id, department_id, code, name, ro_user_id, is_active FROM cost_centers WHERE tenant_id = $1`, tenantID, func(row pgx.Rows) error {
		var cc CostCenter
		if err := row.Scan(&cc.ID, &cc.DepartmentID, &cc.Code, &cc.Name, &cc.ROUserID, &cc.Active); err != nil {
			return err
		}
		cat.CostCenters[cc.ID] = cc
		return nil
	}); err != nil {
		return Catalog{}, err
	}
	if err := collect(ctx, q, `SELECT id, code, name, is_active FROM projects WHERE tenant_id = $1`, tenantID, func(row pgx.Rows) error {
		var p Project
		if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Active); err != nil {
			return err
		}
		cat.Projects[p.ID] = p
		return nil
	}); err != nil {
		return Catalog{}, err
	}
	if err := collect(ctx, q, `SELECT `+resourceColumns+` FROM resources WHERE tenant_id = $1`, tenantID, func(row pgx.Rows) error {
		res, err := scanResource(row)
		if err != nil {
			return err
		}
		cat.Resources[res.ID] = res
		return nil
	}); err != nil {
		return Catalog{}, err
	}
	if err := collect(ctx, q, `SELECT id, name, COALESCE(skill_profile, ''), department_id, cost_center_id, is_active FROM placeholders WHERE tenant_id = $1`, tenantID, func(row pgx.Rows) error {
		var ph Placeholder
		if err := row.Scan(&ph.ID, &ph.Name, &ph.SkillProfile, &ph.DepartmentID, &ph.CostCenterID, &ph.Active); err != nil {
			return err
		}
		cat.Placeholders[ph.ID] = ph
		return nil
	}); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

func collect(ctx context.Context, q db.DBTX, sql, tenantID string, scan func(pgx.Rows) error) error {
	rows, err := q.Query(ctx, sql, tenantID)
	if err != nil {
		return fmt.Errorf("directory: catalog: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("directory: catalog scan: %w", err)
		}
	}
	return rows.Err()
}
