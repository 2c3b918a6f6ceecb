package models

// UserRole represents the roles carried in access tokens issued by the identity service.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleVoter      UserRole = "VOTER"
)

// SupportAdminRoles lists roles allowed to triage support requests.
var SupportAdminRoles = []UserRole{RoleAdmin, RoleSuperAdmin}

// IsSupportAdmin reports whether role may manage support requests.
func (r UserRole) IsSupportAdmin() bool {
	for _, allowed := range SupportAdminRoles {
		if r == allowed {
			return true
		}
	}
	return false
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
