package access

import (
	"path"
	"strings"
)

// Well-known client paths.
const (
	PathRoot           = "/"
	PathLogin          = "/login"
	PathForgotPassword = "/forgot-password"
	PathResetPassword  = "/reset-password"
	PathChangePassword = "/change-password"
	PathDashboard      = "/dashboard"
	PathCompanies      = "/companies"
	PathUpload         = "/upload"
	PathHistory        = "/history"
	PathNotifications  = "/notifications"
	PathReports        = "/reports"
	PathAdmin          = "/admin"
	PathUsers          = "/users"
)

// Route is an entry of the client route table.
type Route struct {
	Path        string
	Title       string
	Public      bool
	Menu        bool
	Requirement Requirement
}

// Routes is the client route table. Menu entries keep sidebar order.
var Routes = []Route{
	{Path: PathLogin, Title: "Login", Public: true},
	{Path: PathForgotPassword, Title: "Esqueci a senha", Public: true},
	{Path: PathResetPassword, Title: "Redefinir senha", Public: true},
	{Path: PathChangePassword, Title: "Alterar senha"},
	{Path: PathRoot, Title: "Início", Requirement: Requirement{Permission: PermRead}},
	{Path: PathCompanies, Title: "Empresas", Requirement: Requirement{Permission: PermRead}},
	{Path: PathDashboard, Title: "Dashboard", Menu: true, Requirement: Requirement{Permission: PermRead}},
	{Path: PathUpload, Title: "Upload", Menu: true, Requirement: Requirement{Permission: PermWrite}},
	{Path: PathHistory, Title: "Histórico", Menu: true, Requirement: Requirement{Permission: PermWrite}},
	{Path: PathNotifications, Title: "Notificações", Menu: true, Requirement: Requirement{Permission: PermRead}},
	{Path: PathReports, Title: "Relatórios", Menu: true, Requirement: Requirement{Permission: PermRead}},
	{Path: PathAdmin, Title: "Administração", Menu: true, Requirement: Requirement{Permission: PermAdmin}},
	{Path: PathUsers, Title: "Usuários", Menu: true, Requirement: Requirement{AllowedRoles: []Role{RoleAdmin}}},
}

// Clean normalizes a client path: leading slash, no trailing slash, no query.
func Clean(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Lookup finds the route owning p. Sub-paths such as /companies/12 belong to
// their first segment's route; "/" matches only itself.
func Lookup(p string) (Route, bool) {
	p = Clean(p)
	for _, r := range Routes {
		if r.Path == p {
			return r, true
		}
	}
	if p == PathRoot {
		return Route{}, false
	}
	first := "/" + strings.SplitN(strings.TrimPrefix(p, "/"), "/", 2)[0]
	for _, r := range Routes {
		if r.Path == first && r.Path != PathRoot {
			return r, true
		}
	}
	return Route{}, false
}

// IsPublic reports whether p renders without a session.
func IsPublic(p string) bool {
	r, ok := Lookup(p)
	return ok && r.Public
}

// MenuFor lists the menu entries the principal may open.
func MenuFor(p Principal) []Route {
	var out []Route
	for _, r := range Routes {
		if r.Menu && Allowed(p, r.Requirement) {
			out = append(out, r)
		}
	}
	return out
}
