package shared

// Core platform permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	PermRoutesView = "routes.view"
	PermRoutesEdit = "routes.edit"

	PermAuditView   = "audit.view"
	PermAuditExport = "audit.export"
)

// Marketplace permissions consumed by the collaborator modules.
const (
	PermProductsView   = "products.view"
	PermProductsEdit   = "products.edit"
	PermProductsDelete = "products.delete"

	PermVendorsView    = "vendors.view"
	PermVendorsApprove = "vendors.approve"
	PermVendorsSuspend = "vendors.suspend"
)

// CoreScopes lists all permissions owned by the platform itself.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermRoutesView,
		PermRoutesEdit,
		PermAuditView,
		PermAuditExport,
	}
}
