package shared

// Core platform permissions.
const (
	PermUsersManage = "users.manage"
	PermRolesManage = "roles.manage"
	PermAuditView   = "audit.view"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersManage,
		PermRolesManage,
		PermAuditView,
	}
}
