package enums

// UserRole gates access to admin routes.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

var userRoles = values[UserRole]{UserRoleUser, UserRoleAdmin}

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.has(r) }

func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse("user role", value)
}
