package shared

import "fmt"

// Role is the closed set of tenant roles. Authorization points switch over it exhaustively.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleFinance  Role = "Finance"
	RolePM       Role = "PM"
	RoleRO       Role = "RO"
	RoleDirector Role = "Director"
	RoleEmployee Role = "Employee"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleFinance, RolePM, RoleRO, RoleDirector, RoleEmployee}
}

// ParseRole converts raw input into a Role, rejecting unknown values.
func ParseRole(raw string) (Role, error) {
	switch r := Role(raw); r {
	case RoleAdmin, RoleFinance, RolePM, RoleRO, RoleDirector, RoleEmployee:
		return r, nil
	default:
		return "", Unauthorized(fmt.Sprintf("unknown role %q", raw))
	}
}

// Capability names a guarded action.
type Capability string

const (
	CapManagePeriods       Capability = "periods.manage"
	CapMutateDemand        Capability = "demand.mutate"
	CapMutateSupply        Capability = "supply.mutate"
	CapMutateActuals       Capability = "actuals.mutate"
	CapSignActuals         Capability = "actuals.sign"
	CapProxySignActuals    Capability = "actuals.proxy_sign"
	CapListActuals         Capability = "actuals.list"
	CapOverviewActuals     Capability = "actuals.overview"
	CapActionApprovals     Capability = "approvals.action"
	CapViewConsolidation   Capability = "consolidation.view"
	CapPublishSnapshots    Capability = "consolidation.publish"
	CapMutateOOP           Capability = "oop.mutate"
	CapManageNotifications Capability = "notifications.manage"
)

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	switch r {
	case RoleAdmin:
		switch c {
		case CapManagePeriods, CapMutateActuals, CapSignActuals, CapProxySignActuals, CapListActuals, CapOverviewActuals,
			CapViewConsolidation, CapPublishSnapshots, CapMutateOOP, CapManageNotifications:
			return true
		}
		return false
	case RoleFinance:
		switch c {
		case CapManagePeriods, CapMutateDemand, CapMutateSupply, CapListActuals, CapOverviewActuals,
			CapViewConsolidation, CapPublishSnapshots, CapMutateOOP, CapManageNotifications:
			return true
		}
		return false
	case RolePM:
		return c == CapMutateDemand
	case RoleRO:
		switch c {
		case CapMutateSupply, CapMutateActuals, CapProxySignActuals, CapListActuals, CapActionApprovals:
			return true
		}
		return false
	case RoleDirector:
		switch c {
		case CapActionApprovals, CapViewConsolidation:
			return true
		}
		return false
	case RoleEmployee:
		switch c {
		case CapMutateActuals, CapSignActuals:
			return true
		}
		return false
	default:
		return false
	}
}

// Require returns UNAUTHORIZED_ROLE unless the actor's role grants c.
func (a Actor) Require(c Capability) error {
	if !a.Role.Can(c) {
		return Unauthorized(fmt.Sprintf("role %q cannot perform %s", a.Role, c))
	}
	return nil
}
