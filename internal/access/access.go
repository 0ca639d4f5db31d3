// Package access derives a user's role and permission from the server profile and
// answers authorization questions against them. Every function here is pure.
package access

import (
	"strings"

	"iaeco.app/internal/api"
)

// Role is the business-facing classification of a user.
type Role int

// Roles ordered from least to most privileged.
const (
	RoleClient   Role = 1
	RoleEmployee Role = 2
	RoleAdmin    Role = 3
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleEmployee:
		return "employee"
	default:
		return "client"
	}
}

// Permission is a level on the read < write < admin ladder.
type Permission int

// Zero Permission means "no requirement".
const (
	PermRead  Permission = 1
	PermWrite Permission = 2
	PermAdmin Permission = 3
)

func (p Permission) String() string {
	switch p {
	case PermAdmin:
		return "admin"
	case PermWrite:
		return "write"
	case PermRead:
		return "read"
	default:
		return "none"
	}
}

// ParsePermission maps a permission name. Unknown or empty values map to PermRead.
func ParsePermission(s string) Permission {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return PermAdmin
	case "write":
		return PermWrite
	default:
		return PermRead
	}
}

// ParseRole maps a role name. Unknown or empty values map to RoleClient.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin
	case "employee":
		return RoleEmployee
	default:
		return RoleClient
	}
}

// PermissionOf is the 1:1 role to permission mapping.
func PermissionOf(r Role) Permission {
	switch r {
	case RoleAdmin:
		return PermAdmin
	case RoleEmployee:
		return PermWrite
	default:
		return PermRead
	}
}

// Derive computes role and permission from a profile. First match wins:
// company_role, then is_admin or legacy role "admin", then is_employee or legacy
// role "employee", else client.
func Derive(p api.Profile) (Role, Permission) {
	role := deriveRole(p)
	return role, PermissionOf(role)
}

func deriveRole(p api.Profile) Role {
	switch p.CompanyRole {
	case "company_admin":
		return RoleAdmin
	case "employee":
		return RoleEmployee
	case "client":
		return RoleClient
	}
	switch {
	case p.IsAdmin || p.Role == "admin":
		return RoleAdmin
	case p.IsEmployee || p.Role == "employee":
		return RoleEmployee
	}
	return RoleClient
}

// CanAccess reports whether current satisfies required on the permission ladder.
func CanAccess(current, required Permission) bool {
	if required <= PermRead {
		return true
	}
	return current >= required
}

// Principal is the derived identity the gate checks.
type Principal struct {
	Role       Role
	Permission Permission
}

// Requirement is what a route or menu entry demands.
type Requirement struct {
	Permission   Permission
	AllowedRoles []Role
}

// Allowed applies the permission ladder and the role allow-list. Admin permission
// bypasses the allow-list.
func Allowed(p Principal, req Requirement) bool {
	if !CanAccess(p.Permission, req.Permission) {
		return false
	}
	if len(req.AllowedRoles) == 0 || p.Permission == PermAdmin {
		return true
	}
	for _, r := range req.AllowedRoles {
		if r == p.Role {
			return true
		}
	}
	return false
}
