package metadata

// Platform roles.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleMember = "member"
)

// Organization membership roles.
const (
	OrgRoleOwner  = "owner"
	OrgRoleAdmin  = "admin"
	OrgRoleEditor = "editor"
	OrgRoleMember = "member"
)

// UserContext represents the authenticated user, set by auth middleware.
// OrgRole is empty when the user is not acting inside an organization.
type UserContext struct {
	ID      string `json:"id"`
	OrgID   string `json:"org_id,omitempty"`
	Role    string `json:"role"`
	OrgRole string `json:"org_role,omitempty"`
}

// IsAdmin checks whether the user has the platform admin role.
func (u *UserContext) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CanEditGlobal reports whether the user may mutate public templates.
func (u *UserContext) CanEditGlobal() bool {
	return u != nil && (u.Role == RoleAdmin || u.Role == RoleEditor)
}

// IsOrgAdmin reports whether the user administers orgID.
func (u *UserContext) IsOrgAdmin(orgID string) bool {
	if u == nil || orgID == "" || u.OrgID != orgID {
		return false
	}
	return u.OrgRole == OrgRoleOwner || u.OrgRole == OrgRoleAdmin
}

// CanManageTemplates reports whether the user may mutate templates owned by orgID.
func (u *UserContext) CanManageTemplates(orgID string) bool {
	if u.IsOrgAdmin(orgID) {
		return true
	}
	return u != nil && u.OrgID == orgID && orgID != "" && u.OrgRole == OrgRoleEditor
}

// IsMemberOf reports whether the user is acting inside orgID with any role.
func (u *UserContext) IsMemberOf(orgID string) bool {
	return u != nil && orgID != "" && u.OrgID == orgID && u.OrgRole != ""
}
