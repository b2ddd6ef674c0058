package model

// Permission keys stored in roles.rights.
const (
	PermManageUsers           = "manage_users"
	PermManageCatalog         = "manage_catalog"
	PermManageLoans           = "manage_loans"
	PermViewReports           = "view_reports"
	PermExportTables          = "export_tables"
	PermBackup                = "backup"
	PermCreateReservation     = "create_reservation"
	PermManageOwnReservations = "manage_own_reservations"
	PermManageReservations    = "manage_reservations"
)

// RoleGrant is one role's name and raw rights map as stored in the database.
// Values other than JSON booleans are ignored during merge.
type RoleGrant struct {
	Name   string
	Rights map[string]any
}

// Rights is the flattened permission set computed once at authentication.
// Either All is set (full access) or Granted holds the explicitly granted keys.
type Rights struct {
	All     bool
	Granted map[string]bool
}

// Can reports whether the permission key is granted.
func (r Rights) Can(perm string) bool {
	if r.All {
		return true
	}
	return r.Granted[perm]
}

// MergeRights flattens role grants with union semantics: any role with
// all=true short-circuits to full access; otherwise an explicit true from
// any role wins over false/absent from the others.
func MergeRights(grants []RoleGrant) Rights {
	for _, g := range grants {
		if v, ok := g.Rights["all"].(bool); ok && v {
			return Rights{All: true}
		}
	}
	merged := make(map[string]bool)
	for _, g := range grants {
		for k, v := range g.Rights {
			if k == "all" {
				continue
			}
			b, ok := v.(bool)
			if !ok {
				continue
			}
			if b {
				merged[k] = true
			} else if _, seen := merged[k]; !seen {
				merged[k] = false
			}
		}
	}
	return Rights{Granted: merged}
}

// Session is the per-login context passed by value into every service call.
// It is created at authentication and never persisted or stored globally.
type Session struct {
	User   User
	Roles  []string
	Rights Rights
}

// Can reports whether the session holds the permission key.
func (s Session) Can(perm string) bool {
	return s.Rights.Can(perm)
}

// HasRole reports whether the session carries the named role.
func (s Session) HasRole(name string) bool {
	for _, r := range s.Roles {
		if r == name {
			return true
		}
	}
	return false
}
